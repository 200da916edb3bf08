package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/myrjola/planfit/internal/e2etest"
	"github.com/myrjola/planfit/internal/logging"
	"github.com/myrjola/planfit/internal/testhelpers"
)

// pages are visited after signing in. The selector must match at least one element.
var pages = []struct {
	path     string
	selector string
}{
	{path: "/", selector: "ol.week li.day"},
	{path: "/progress", selector: "h1"},
	{path: "/measurements", selector: "form[action='/measurements']"},
	{path: "/settings", selector: "input#nutrition_start"},
}

func testAuth(ctx context.Context, client *e2etest.Client) error {
	var err error
	if _, err = client.Register(ctx); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if _, err = client.Logout(ctx); err != nil {
		return fmt.Errorf("logout user: %w", err)
	}
	if _, err = client.Login(ctx); err != nil {
		return fmt.Errorf("login user: %w", err)
	}
	return nil
}

func testPages(ctx context.Context, client *e2etest.Client) error {
	for _, p := range pages {
		doc, err := client.GetDoc(ctx, p.path)
		if err != nil {
			return fmt.Errorf("get %s: %w", p.path, err)
		}
		if doc.Find(p.selector).Length() == 0 {
			return fmt.Errorf("%s is missing %s", p.path, p.selector)
		}
	}
	return nil
}

func smokeTest(client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second) //nolint:mnd // 20 seconds
	defer cancel()

	if err := testAuth(ctx, client); err != nil {
		return err
	}
	if err := testPages(ctx, client); err != nil {
		return err
	}
	// Leave no test users behind in production.
	doc, err := client.GetDoc(ctx, "/settings")
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	if _, err = client.SubmitForm(ctx, doc, "/settings/delete-user", nil); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		client   *e2etest.Client
		err      error
		start    = time.Now()
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
		hostname = "localhost"
	}

	if client, err = e2etest.NewClient(url, hostname, url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", slog.Any("error", err))
		os.Exit(1)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}
	if err = smokeTest(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "smoke test failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Duration("duration", time.Since(start)))
	os.Exit(0)
}
