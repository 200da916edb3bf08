package plan

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/myrjola/planfit/internal/calendar"
	"gopkg.in/yaml.v3"
)

type document struct {
	Name          string            `yaml:"name"`
	TrainingDays  []trainingDayDoc  `yaml:"training_days"`
	NutritionDays []nutritionDayDoc `yaml:"nutrition_days"`
}

type trainingDayDoc struct {
	Label     string        `yaml:"label"`
	DayIndex  int           `yaml:"day_index"`
	Exercises []exerciseDoc `yaml:"exercises"`
}

type exerciseDoc struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Series      *int   `yaml:"series"`
	Reps        string `yaml:"reps"`
	RestSeconds *int   `yaml:"rest_seconds"`
	Notes       string `yaml:"notes"`
}

type nutritionDayDoc struct {
	Week  int                        `yaml:"week"`
	Day   string                     `yaml:"day"`
	Meals map[string][]menuOptionDoc `yaml:"meals"`
}

type menuOptionDoc struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	Lines []string `yaml:"lines"`
}

// ParseDocument decodes a YAML plan document into a validated plan and returns the plan name.
//
// Exercises without an id get a random one. Training days without day_index get one parsed from the label
// and, failing that, their 1-based position.
func ParseDocument(r io.Reader) (Plan, string, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Plan{}, "", fmt.Errorf("decode plan document: %w", err)
	}

	var p Plan
	for i, tdDoc := range doc.TrainingDays {
		td := TrainingDay{
			DayIndex:  tdDoc.DayIndex,
			Label:     strings.TrimSpace(tdDoc.Label),
			Exercises: make([]Exercise, 0, len(tdDoc.Exercises)),
		}
		if td.DayIndex == 0 {
			if parsed, ok := ParseDayLabel(td.Label); ok {
				td.DayIndex = parsed
			} else {
				td.DayIndex = i + 1
			}
		}
		if td.Label == "" {
			td.Label = fmt.Sprintf("Day %d", td.DayIndex)
		}
		for _, exDoc := range tdDoc.Exercises {
			id := strings.TrimSpace(exDoc.ID)
			if id == "" {
				id = uuid.NewString()
			}
			td.Exercises = append(td.Exercises, Exercise{
				ID:          id,
				Name:        strings.TrimSpace(exDoc.Name),
				Series:      exDoc.Series,
				Reps:        strings.TrimSpace(exDoc.Reps),
				RestSeconds: exDoc.RestSeconds,
				Notes:       strings.TrimSpace(exDoc.Notes),
			})
		}
		p.TrainingDays = append(p.TrainingDays, td)
	}

	for _, ndDoc := range doc.NutritionDays {
		weekday, err := calendar.ParseWeekday(ndDoc.Day)
		if err != nil {
			return Plan{}, "", fmt.Errorf("nutrition day week %d: %w", ndDoc.Week, err)
		}
		nd := NutritionDay{
			WeekIndex: ndDoc.Week,
			DayOfWeek: weekday,
			Meals:     make(map[MealType][]MenuOption, len(ndDoc.Meals)),
		}
		for mealName, optionDocs := range ndDoc.Meals {
			meal, err := ParseMealType(mealName)
			if err != nil {
				return Plan{}, "", fmt.Errorf("nutrition day week %d %s: %w", ndDoc.Week, weekday, err)
			}
			for i, o := range optionDocs {
				optionID := strings.TrimSpace(o.ID)
				if optionID == "" {
					optionID = fmt.Sprintf("%s-%d", meal, i+1)
				}
				nd.Meals[meal] = append(nd.Meals[meal], MenuOption{
					OptionID: optionID,
					Title:    strings.TrimSpace(o.Title),
					Lines:    o.Lines,
				})
			}
		}
		p.NutritionDays = append(p.NutritionDays, nd)
	}

	if err := p.Validate(); err != nil {
		return Plan{}, "", fmt.Errorf("validate plan: %w", err)
	}
	return p, strings.TrimSpace(doc.Name), nil
}
