package main

import (
	"net/http"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/planfit/internal/e2etest"
	"github.com/myrjola/planfit/internal/testhelpers"
)

//nolint:gocognit // This test is inherently complex due to the nature of the tested function.
func Test_application_settings(t *testing.T) {
	var (
		ctx = t.Context()
		doc *goquery.Document
	)

	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	client := server.Client()

	checkboxIsChecked := func(doc *goquery.Document, symbol string) bool {
		t.Helper()
		return doc.Find("input#training-day-" + symbol + "[type='checkbox']").Is("[checked]")
	}

	t.Run("Requires authentication", func(t *testing.T) {
		resp, getErr := client.Get(ctx, "/settings")
		if getErr != nil {
			t.Fatalf("Failed to get settings: %v", getErr)
		}
		_ = resp.Body.Close()
		if got, want := resp.Request.URL.Path, "/"; got != want {
			t.Errorf("Expected redirect to %q, got %q", want, got)
		}
	})

	registerWithSamplePlan(ctx, t, server)

	t.Run("Shows default settings", func(t *testing.T) {
		if doc, err = client.GetDoc(ctx, "/settings"); err != nil {
			t.Fatalf("Failed to get settings: %v", err)
		}
		if doc.Find("h1").Text() != "Settings" {
			t.Error("Expected to be on settings page")
		}

		// The sample plan has three training days so the defaults are the first three weekdays.
		want := map[string]bool{
			"Mon": true, "Tue": true, "Wed": true, "Thu": false, "Fri": false, "Sat": false, "Sun": false,
		}
		for symbol, shouldBeChecked := range want {
			if got := checkboxIsChecked(doc, symbol); got != shouldBeChecked {
				t.Errorf("Expected %s checked status to be %v, got %v", symbol, shouldBeChecked, got)
			}
		}
	})

	t.Run("At least one training day is required", func(t *testing.T) {
		_, err = client.SubmitForm(ctx, doc, "/settings", map[string]string{
			"Monday":    "off",
			"Tuesday":   "off",
			"Wednesday": "off",
		})
		if !containsStatusError(err, http.StatusBadRequest) {
			t.Errorf("Expected status error 400, got: %v", err)
		}
	})

	t.Run("Move training to Friday", func(t *testing.T) {
		if _, err = client.SubmitForm(ctx, doc, "/settings", map[string]string{
			"Nutrition cycle start": "2024-01-01",
			"Monday":                "off",
			"Tuesday":               "off",
			"Wednesday":             "off",
			"Friday":                "on",
		}); err != nil {
			t.Fatalf("Failed to submit settings: %v", err)
		}

		if doc, err = client.GetDoc(ctx, "/days/2024-01-01"); err != nil {
			t.Fatalf("Failed to get day: %v", err)
		}
		if doc.Find("section.rest-day").Length() != 1 {
			t.Error("Expected Monday to be a rest day")
		}
		if doc, err = client.GetDoc(ctx, "/days/2024-01-05"); err != nil {
			t.Fatalf("Failed to get day: %v", err)
		}
		if got := doc.Find("section.training h2").Text(); got != "Day 1 - Lower" {
			t.Errorf("Expected Friday to be Day 1 - Lower, got %q", got)
		}
	})

	t.Run("Settings persist after logout and login", func(t *testing.T) {
		if _, err = client.Logout(ctx); err != nil {
			t.Fatalf("Failed to logout: %v", err)
		}
		if _, err = client.Login(ctx); err != nil {
			t.Fatalf("Failed to login: %v", err)
		}
		if doc, err = client.GetDoc(ctx, "/settings"); err != nil {
			t.Fatalf("Failed to get settings: %v", err)
		}
		if got, _ := doc.Find("input#nutrition_start").Attr("value"); got != "2024-01-01" {
			t.Errorf("Expected nutrition start 2024-01-01, got %q", got)
		}
		for symbol, shouldBeChecked := range map[string]bool{"Mon": false, "Fri": true} {
			if got := checkboxIsChecked(doc, symbol); got != shouldBeChecked {
				t.Errorf("Expected %s checked status to be %v, got %v", symbol, shouldBeChecked, got)
			}
		}
	})

	t.Run("Export personal data", func(t *testing.T) {
		resp, getErr := client.Get(ctx, "/settings/export-data")
		if getErr != nil {
			t.Fatalf("Failed to export data: %v", getErr)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Type"); got != "application/x-sqlite3" {
			t.Errorf("Expected SQLite content type, got %q", got)
		}
	})

	t.Run("Delete account", func(t *testing.T) {
		if doc, err = client.GetDoc(ctx, "/settings"); err != nil {
			t.Fatalf("Failed to get settings: %v", err)
		}
		if doc, err = client.SubmitForm(ctx, doc, "/settings/delete-user", nil); err != nil {
			t.Fatalf("Failed to delete user: %v", err)
		}
		checkButtonPresence(t, doc, "Register", 1)

		var count int
		if err = server.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
			t.Fatalf("Failed to count users: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected no users after deletion, got %d", count)
		}
	})
}
