package e2etest

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// formControls are the elements a label can point at.
const formControls = "input, textarea, select"

// findForm returns the form posting to action.
func findForm(doc *goquery.Document, action string) (*goquery.Selection, error) {
	form := doc.Find(fmt.Sprintf("form[action='%s']", action))
	if form.Length() == 0 {
		return nil, fmt.Errorf("no form with action %s", action)
	}
	return form.First(), nil
}

// labeledControl returns the control labelled labelText, either referenced with the for attribute or nested in
// the label.
func labeledControl(form *goquery.Selection, labelText string) (*goquery.Selection, error) {
	label := form.Find(fmt.Sprintf("label:contains(%q)", labelText)).First()
	if label.Length() == 0 {
		return nil, fmt.Errorf("no label %q", labelText)
	}
	control := label.Find(formControls)
	if id, ok := label.Attr("for"); ok {
		control = form.Find(formControls).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.AttrOr("id", "") == id
		})
	}
	if control.Length() == 0 {
		return nil, fmt.Errorf("label %q has no control", labelText)
	}
	return control.First(), nil
}
