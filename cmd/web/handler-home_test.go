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

func testLookupEnv(key string) (string, bool) {
	values := map[string]string{
		"PLANFIT_SQLITE_URL": ":memory:",
		"PLANFIT_ADDR":       "localhost:0",
	}
	v, ok := values[key]
	return v, ok
}

// containsStatusError reports whether err is the e2etest client's error for an unexpected statusCode.
func containsStatusError(err error, statusCode int) bool {
	return err != nil && strings.Contains(err.Error(), "status code: "+strconv.Itoa(statusCode))
}

func buttonCount(doc *goquery.Document, text string) int {
	return doc.Find("button:contains('" + text + "')").Length()
}

func checkButtonPresence(t *testing.T, doc *goquery.Document, buttonText string, expectedCount int) {
	t.Helper()
	if got := buttonCount(doc, buttonText); got != expectedCount {
		t.Errorf("%q buttons = %d, want %d", buttonText, got, expectedCount)
	}
}

func Test_application_home(t *testing.T) {
	ctx := t.Context()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	client := server.Client()

	steps := []struct {
		name     string
		do       func(context.Context) (*goquery.Document, error)
		signedIn bool
	}{
		{name: "anonymous", do: func(ctx context.Context) (*goquery.Document, error) { return client.GetDoc(ctx, "/") }},
		{name: "register", do: client.Register, signedIn: true},
		{name: "logout", do: client.Logout},
		{name: "login", do: client.Login, signedIn: true},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			doc, stepErr := step.do(ctx)
			if stepErr != nil {
				t.Fatalf("%s: %v", step.name, stepErr)
			}
			wantButtons := 1
			if step.signedIn {
				wantButtons = 0
			}
			for _, button := range []string{"Sign in", "Register"} {
				checkButtonPresence(t, doc, button, wantButtons)
			}
			if !step.signedIn {
				return
			}
			if got := doc.Find("h1").Text(); got != "This week" {
				t.Errorf("heading = %q, want the week overview", got)
			}
			if got := doc.Find("ol.week li").Length(); got != 7 {
				t.Errorf("week overview has %d days, want 7", got)
			}
			if doc.Find("p.notice:contains('No plan')").Length() != 1 {
				t.Error("missing no plan notice for a user without a plan")
			}
		})
	}
}

func Test_crossOriginProtection(t *testing.T) {
	ctx := t.Context()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	crossSite, err := server.CrossSiteClient()
	if err != nil {
		t.Fatalf("Failed to create cross-site client: %v", err)
	}
	doc, err := crossSite.GetDoc(ctx, "/")
	if err != nil {
		t.Fatalf("Failed to get home page: %v", err)
	}

	_, err = crossSite.SubmitForm(ctx, doc, "/api/registration/start", nil)
	if !containsStatusError(err, http.StatusForbidden) && !containsStatusError(err, http.StatusBadRequest) {
		t.Errorf("cross-site form submission error = %v, want status 403 or 400", err)
	}
}
