package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"expense-tracker-gateway/internal/auth"
	"expense-tracker-gateway/internal/license"
)

type client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func main() {
	baseURL := os.Getenv("GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		fmt.Println("ADMIN_SECRET environment variable is required")
		os.Exit(1)
	}

	c := &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: 15 * time.Second},
	}

	fmt.Println("========================================")
	fmt.Println(" License Administration Tool")
	fmt.Println("========================================")
	fmt.Printf(" Gateway: %s\n", c.baseURL)

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Create license")
		fmt.Println("  2. List licenses")
		fmt.Println("  3. Show a license")
		fmt.Println("  4. Change license status")
		fmt.Println("  5. Change license tier")
		fmt.Println("  6. Show tier info")
		fmt.Println("  7. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			createLicense(c, reader)
		case "2":
			listLicenses(c, reader)
		case "3":
			showLicense(c, reader)
		case "4":
			updateField(c, reader, "status")
		case "5":
			updateField(c, reader, "tier")
		case "6":
			showTierInfo()
		case "7":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func createLicense(c *client, reader *bufio.Reader) {
	fmt.Println("\n--- Create License ---")
	fmt.Println("Tiers:")
	fmt.Println("  1. Basic")
	fmt.Println("  2. Pro")
	fmt.Println("  3. Enterprise")
	fmt.Print("Select tier (1-3): ")

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	var tier string
	switch input {
	case "1":
		tier = license.TierBasic
	case "2":
		tier = license.TierPro
	case "3":
		tier = license.TierEnterprise
	default:
		fmt.Println("Invalid tier, defaulting to Pro")
		tier = license.TierPro
	}

	fmt.Print("Email (optional, blank to skip): ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	body := map[string]string{"tier": tier}
	if email != "" {
		body["email"] = email
	}

	var out struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.do(http.MethodPost, "/licenses", body, &out); err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Tier:        %s\n", tier)
	fmt.Printf("  License Key: %s\n", out.Key)
	fmt.Printf("  Created:     %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println("========================================")

	fmt.Print("\nSave to file? (y/n): ")
	save, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(save)) == "y" {
		filename := fmt.Sprintf("license_%s_%s.txt", tier, time.Now().Format("20060102_150405"))
		content := fmt.Sprintf("Tier: %s\nLicense Key: %s\nCreated: %s\n",
			tier, out.Key, time.Now().Format("2006-01-02 15:04:05"))
		os.WriteFile(filename, []byte(content), 0644)
		fmt.Printf("Saved to: %s\n", filename)
	}
}

func listLicenses(c *client, reader *bufio.Reader) {
	fmt.Println("\n--- List Licenses ---")
	fmt.Print("Filter by tier (blank for all): ")
	tier, _ := reader.ReadString('\n')
	tier = strings.TrimSpace(tier)

	path := "/licenses"
	if tier != "" {
		path += "?tier=" + url.QueryEscape(tier)
	}

	var out struct {
		Data []license.License `json:"data"`
	}
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  %d license(s)\n", len(out.Data))
	for _, lic := range out.Data {
		fmt.Printf("\n  %s\n", lic.ID)
		fmt.Printf("    tier=%s status=%s email=%s\n", lic.Tier, lic.Status, lic.Email)
		fmt.Printf("    ai: %d/%d used (cycle %s)\n",
			lic.Usage.AIRequestsUsed, lic.Limits.AIRequestsPerMonth, lic.Usage.BillingCycle)
	}
	fmt.Println("========================================")
}

func showLicense(c *client, reader *bufio.Reader) {
	fmt.Print("\nEnter license id or key: ")
	id, _ := reader.ReadString('\n')
	id = strings.TrimSpace(id)

	var out struct {
		Data license.License `json:"data"`
	}
	if err := c.do(http.MethodGet, "/licenses/"+url.PathEscape(id), nil, &out); err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}

	pretty, _ := json.MarshalIndent(out.Data, "", "  ")
	fmt.Println("\n========================================")
	fmt.Println(string(pretty))
	fmt.Println("========================================")
}

func updateField(c *client, reader *bufio.Reader, field string) {
	fmt.Print("\nEnter license id or key: ")
	id, _ := reader.ReadString('\n')
	id = strings.TrimSpace(id)

	fmt.Printf("New %s: ", field)
	value, _ := reader.ReadString('\n')
	value = strings.TrimSpace(value)

	var out struct {
		Data license.License `json:"data"`
	}
	body := map[string]string{field: value}
	if err := c.do(http.MethodPut, "/licenses/"+url.PathEscape(id), body, &out); err != nil {
		fmt.Printf("Error: %s\n", err)
		return
	}

	fmt.Printf("Updated: %s is now %s=%s status=%s\n", out.Data.ID, field, value, out.Data.Status)
}

func showTierInfo() {
	fmt.Println("\n========================================")
	fmt.Println(" Tier Overview")
	fmt.Println("========================================")
	fmt.Printf("\nBASIC\n  ai_requests_per_month: %d\n  storage_limit_mb: %d\n",
		license.DefaultAIRequestsPerMonth, license.DefaultStorageLimitMB)
	fmt.Printf("\nPRO\n  ai_requests_per_month: %d\n  storage_limit_mb: %d\n",
		license.DefaultAIRequestsPerMonth, license.DefaultStorageLimitMB)
	fmt.Printf("\nENTERPRISE\n  ai_requests_per_month: %d\n  storage_limit_mb: %d\n",
		license.DefaultAIRequestsPerMonth, license.DefaultStorageLimitMB)
	fmt.Println("\nLimits are per-license and adjustable via update.")
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set(auth.AdminSecretHeader, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
