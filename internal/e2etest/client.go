package e2etest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/descope/virtualwebauthn"
)

// Client is a browser-like HTTP client with a cookie jar and a virtual passkey authenticator.
type Client struct {
	client        *http.Client
	url           string
	rp            virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
	// secFetchSite is sent as the Sec-Fetch-Site header when not empty.
	secFetchSite string
}

// NewClient creates a client for the server at url. rpID and rpOrigin must match the server's WebAuthn relying
// party.
func NewClient(url, rpID, rpOrigin string) (*Client, error) {
	return NewClientWithSecFetchSite(url, rpID, rpOrigin, "")
}

// NewClientWithSecFetchSite creates a client that sends the given Sec-Fetch-Site header like a browser would.
// Use "cross-site" to simulate requests originating from a malicious site.
func NewClientWithSecFetchSite(url, rpID, rpOrigin, secFetchSite string) (*Client, error) {
	jar, err := newUnsafeCookieJar()
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		client:        &http.Client{Jar: jar}, //nolint:exhaustruct // defaults are fine in tests.
		url:           url,
		rp:            virtualwebauthn.RelyingParty{Name: "Planfit", ID: rpID, Origin: rpOrigin},
		authenticator: virtualwebauthn.NewAuthenticator(),
		secFetchSite:  secFetchSite,
	}, nil
}

const (
	readyTimeout      = time.Second
	readyPollInterval = 100 * time.Millisecond
)

// WaitForReady polls urlPath until it answers 200 OK or readyTimeout passes.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		if resp, err := c.Get(ctx, urlPath); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", urlPath, ctx.Err())
		case <-ticker.C:
		}
	}
}

// do sends a request to the server. contentType is set when not empty.
func (c *Client) do(ctx context.Context, method, urlPath, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.secFetchSite != "" {
		req.Header.Set("Sec-Fetch-Site", c.secFetchSite)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, urlPath, err)
	}
	return resp, nil
}

// readOK reads and closes the body of a 200 OK response. Other statuses are errors.
func readOK(resp *http.Response) ([]byte, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// readDocument parses a 200 OK HTML response. The document URL is the final URL after redirects.
func readDocument(resp *http.Response) (*goquery.Document, error) {
	b, err := readOK(resp)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc.Url = resp.Request.URL
	return doc, nil
}

// Get fetches urlPath. The caller closes the response body.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, urlPath, "", nil)
}

// GetDoc fetches urlPath and parses the HTML response.
func (c *Client) GetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, urlPath)
	if err != nil {
		return nil, err
	}
	return readDocument(resp)
}

func (c *Client) postJSON(ctx context.Context, urlPath string, body io.Reader) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodPost, urlPath, "application/json", body)
	if err != nil {
		return nil, err
	}
	return readOK(resp)
}

// Register creates a passkey for a new user and returns the front page.
func (c *Client) Register(ctx context.Context) (*goquery.Document, error) {
	options, err := c.postJSON(ctx, "/api/registration/start", nil)
	if err != nil {
		return nil, fmt.Errorf("start registration: %w", err)
	}
	attestation, err := virtualwebauthn.ParseAttestationOptions(string(options))
	if err != nil {
		return nil, fmt.Errorf("parse attestation options: %w", err)
	}

	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	response := virtualwebauthn.CreateAttestationResponse(c.rp, c.authenticator, credential, *attestation)
	if _, err = c.postJSON(ctx, "/api/registration/finish", strings.NewReader(response)); err != nil {
		return nil, fmt.Errorf("finish registration: %w", err)
	}

	c.authenticator.AddCredential(credential)
	// Discoverable passkey login needs the user handle.
	c.authenticator.Options.UserHandle = []byte(attestation.UserID)

	return c.GetDoc(ctx, "/")
}

// Login signs in with the passkey created by Register and returns the front page.
func (c *Client) Login(ctx context.Context) (*goquery.Document, error) {
	if len(c.authenticator.Credentials) == 0 {
		return nil, errors.New("no registered credential, call Register first")
	}
	options, err := c.postJSON(ctx, "/api/login/start", nil)
	if err != nil {
		return nil, fmt.Errorf("start login: %w", err)
	}
	assertion, err := virtualwebauthn.ParseAssertionOptions(string(options))
	if err != nil {
		return nil, fmt.Errorf("parse assertion options: %w", err)
	}

	response := virtualwebauthn.CreateAssertionResponse(c.rp, c.authenticator, c.authenticator.Credentials[0], *assertion)
	if _, err = c.postJSON(ctx, "/api/login/finish", strings.NewReader(response)); err != nil {
		return nil, fmt.Errorf("finish login: %w", err)
	}
	return c.GetDoc(ctx, "/")
}

// Logout submits the logout form of the settings page.
func (c *Client) Logout(ctx context.Context) (*goquery.Document, error) {
	doc, err := c.GetDoc(ctx, "/settings")
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return c.SubmitForm(ctx, doc, "/api/logout", nil)
}

// SubmitForm posts the form with action formActionURLPath found in doc and returns the response document.
//
// The form is serialised like a browser would: named inputs with their values, checked checkboxes and radios,
// textareas and selected options. formFields then overrides values by label text. For checkboxes and radios
// the value "on" checks and "off" unchecks the input.
func (c *Client) SubmitForm(
	ctx context.Context,
	doc *goquery.Document,
	formActionURLPath string,
	formFields map[string]string,
) (*goquery.Document, error) {
	form, err := findForm(doc, formActionURLPath)
	if err != nil {
		return nil, err
	}

	formData := serializeForm(form)
	for labelText, value := range formFields {
		if err = setField(form, formData, labelText, value); err != nil {
			return nil, fmt.Errorf("set field %s of form %s: %w", labelText, formActionURLPath, err)
		}
	}

	resp, err := c.do(ctx, http.MethodPost, formActionURLPath, "application/x-www-form-urlencoded",
		strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, err
	}
	return readDocument(resp)
}

// serializeForm collects the values a browser would submit without user interaction.
func serializeForm(form *goquery.Selection) neturl.Values {
	formData := neturl.Values{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		value, _ := input.Attr("value")
		switch inputType, _ := input.Attr("type"); inputType {
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); checked {
				if value == "" {
					value = "on"
				}
				formData.Add(name, value)
			}
		case "submit", "button", "file":
		default:
			formData.Add(name, value)
		}
	})
	form.Find("textarea[name]").Each(func(_ int, textarea *goquery.Selection) {
		name, _ := textarea.Attr("name")
		formData.Add(name, textarea.Text())
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		sel.Find("option[selected]").Each(func(_ int, option *goquery.Selection) {
			value, ok := option.Attr("value")
			if !ok {
				value = option.Text()
			}
			formData.Add(name, value)
		})
	})
	return formData
}

// valueInputs returns the inputs named name that serializeForm always submits.
func valueInputs(form *goquery.Selection, name string) *goquery.Selection {
	return form.Find("input[name]").FilterFunction(func(_ int, input *goquery.Selection) bool {
		switch input.AttrOr("type", "") {
		case "checkbox", "radio", "submit", "button", "file":
			return false
		}
		return input.AttrOr("name", "") == name
	})
}

func setField(form *goquery.Selection, formData neturl.Values, labelText, value string) error {
	input, err := labeledControl(form, labelText)
	if err != nil {
		return err
	}
	name, exists := input.Attr("name")
	if !exists {
		return errors.New("input has no name attribute")
	}

	inputType, _ := input.Attr("type")
	if inputType != "checkbox" && inputType != "radio" {
		// Controls sharing a name, like the set weights of an exercise, are submitted in document order.
		idx := valueInputs(form, name).IndexOfSelection(input)
		if idx >= 0 && idx < len(formData[name]) {
			formData[name][idx] = value
			return nil
		}
		formData.Set(name, value)
		return nil
	}

	inputValue, ok := input.Attr("value")
	if !ok {
		inputValue = "on"
	}
	values := slices.DeleteFunc(formData[name], func(v string) bool { return v == inputValue })
	if inputType == "radio" {
		values = nil
	}
	if value == "on" {
		values = append(values, inputValue)
	}
	formData[name] = values
	return nil
}
