package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/planfit/internal/e2etest"
	"github.com/myrjola/planfit/internal/testhelpers"
)

// samplePlanID is the plan seeded by the database fixtures.
const samplePlanID = 1

// registerWithSamplePlan registers the client's user, promotes it to admin and assigns the sample plan to it.
func registerWithSamplePlan(ctx context.Context, t *testing.T, server *e2etest.Server) {
	t.Helper()
	client := server.Client()
	if _, err := client.Register(ctx); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if err := server.PromoteAdmin(ctx); err != nil {
		t.Fatalf("Failed to promote admin: %v", err)
	}
	var userID int
	if err := server.DB().QueryRowContext(ctx, "SELECT id FROM users").Scan(&userID); err != nil {
		t.Fatalf("Failed to query user id: %v", err)
	}

	doc, err := client.GetDoc(ctx, "/admin/plans")
	if err != nil {
		t.Fatalf("Failed to get plans admin page: %v", err)
	}
	assignAction := "/admin/plans/" + strconv.Itoa(samplePlanID) + "/assign"
	if _, err = client.SubmitForm(ctx, doc, assignAction, map[string]string{
		"Assign Sample full body to": strconv.Itoa(userID),
	}); err != nil {
		t.Fatalf("Failed to assign sample plan: %v", err)
	}
}

func inputValue(doc *goquery.Document, id string) string {
	value, _ := doc.Find("input#" + id).Attr("value")
	return value
}

//nolint:gocognit // the subtests share one user journey.
func Test_application_day(t *testing.T) {
	var (
		ctx = t.Context()
		doc *goquery.Document
	)
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	client := server.Client()

	t.Run("Requires authentication", func(t *testing.T) {
		resp, getErr := client.Get(ctx, "/days/2024-01-01")
		if getErr != nil {
			t.Fatalf("Failed to get day: %v", getErr)
		}
		_ = resp.Body.Close()
		if got, want := resp.Request.URL.Path, "/"; got != want {
			t.Errorf("Expected redirect to %q, got %q", want, got)
		}
	})

	registerWithSamplePlan(ctx, t, server)

	t.Run("Training day shows the planned block", func(t *testing.T) {
		// 2024-01-01 is a Monday, the first default training weekday.
		if doc, err = client.GetDoc(ctx, "/days/2024-01-01"); err != nil {
			t.Fatalf("Failed to get day: %v", err)
		}
		if got := doc.Find("section.training h2").Text(); got != "Day 1 - Lower" {
			t.Errorf("Expected block Day 1 - Lower, got %q", got)
		}
		var exercises []string
		doc.Find("article.exercise h3").Each(func(_ int, s *goquery.Selection) {
			exercises = append(exercises, s.Text())
		})
		if got := strings.Join(exercises, ", "); got != "Back squat, Romanian deadlift, Walking lunge" {
			t.Errorf("Unexpected exercises: %s", got)
		}
		if got := doc.Find("form[action='/days/2024-01-01/exercises/0'] input[name='weight']").Length(); got != 4 {
			t.Errorf("Expected 4 set inputs for back squat, got %d", got)
		}
	})

	t.Run("Log set weights", func(t *testing.T) {
		if doc, err = client.SubmitForm(ctx, doc, "/days/2024-01-01/exercises/0", map[string]string{
			"Set 1": "100",
			"Set 2": "102,5",
		}); err != nil {
			t.Fatalf("Failed to submit sets: %v", err)
		}
		if got := inputValue(doc, "weight-0-1"); got != "100" {
			t.Errorf("Expected set 1 weight 100, got %q", got)
		}
		if got := inputValue(doc, "weight-0-2"); got != "102.5" {
			t.Errorf("Expected set 2 weight 102.5, got %q", got)
		}
		if got := inputValue(doc, "weight-0-3"); got != "" {
			t.Errorf("Expected set 3 to be empty, got %q", got)
		}
	})

	t.Run("Invalid weight is rejected", func(t *testing.T) {
		_, err = client.SubmitForm(ctx, doc, "/days/2024-01-01/exercises/0", map[string]string{
			"Set 1": "heavy",
		})
		if !containsStatusError(err, http.StatusBadRequest) {
			t.Fatalf("Expected status error 400, got: %v", err)
		}
		if doc, err = client.GetDoc(ctx, "/days/2024-01-01"); err != nil {
			t.Fatalf("Failed to get day: %v", err)
		}
		if got := inputValue(doc, "weight-0-1"); got != "100" {
			t.Errorf("Expected rejected submission to keep weight 100, got %q", got)
		}
	})

	t.Run("Save note", func(t *testing.T) {
		if doc, err = client.SubmitForm(ctx, doc, "/days/2024-01-01/note", map[string]string{
			"Note": "Felt strong",
		}); err != nil {
			t.Fatalf("Failed to submit note: %v", err)
		}
		if got := doc.Find("textarea#note").Text(); got != "Felt strong" {
			t.Errorf("Expected note to be saved, got %q", got)
		}
	})

	t.Run("Choose meal option", func(t *testing.T) {
		if doc.Find("form.meal").Length() != 2 {
			t.Fatalf("Expected breakfast and lunch on Monday, got %d meal forms", doc.Find("form.meal").Length())
		}
		if doc, err = client.SubmitForm(ctx, doc, "/days/2024-01-01/meals/breakfast", map[string]string{
			"Scrambled eggs": "on",
		}); err != nil {
			t.Fatalf("Failed to choose meal: %v", err)
		}
		if !doc.Find("input#meal-breakfast-eggs").Is("[checked]") {
			t.Error("Expected scrambled eggs to be chosen")
		}
		if doc.Find("input#meal-breakfast-oats").Is("[checked]") {
			t.Error("Expected oats not to be chosen")
		}
	})

	t.Run("Rest day", func(t *testing.T) {
		// Thursday is not among the default training weekdays.
		if doc, err = client.GetDoc(ctx, "/days/2024-01-04"); err != nil {
			t.Fatalf("Failed to get day: %v", err)
		}
		if doc.Find("section.rest-day").Length() != 1 {
			t.Error("Expected rest day section")
		}
		if got := doc.Find("section.rest-day a").AttrOr("href", ""); got != "/days/2024-01-08" {
			t.Errorf("Expected link to next training day /days/2024-01-08, got %q", got)
		}
	})

	t.Run("Invalid date returns 404", func(t *testing.T) {
		resp, getErr := client.Get(ctx, "/days/2024-13-40")
		if getErr != nil {
			t.Fatalf("Failed to get day: %v", getErr)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", resp.StatusCode)
		}
	})
}
