package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// simulate drives scripted conversations against a running api-server.
// It prints each transcript and, with SIM_CONTENDERS > 1, races several
// sessions toward the same slot to exercise the lock path.

type SimConfig struct {
	APIBaseURL   string
	Practitioner string
	Contenders   int
}

type chatRequest struct {
	SessionID    string `json:"session_id"`
	Practitioner string `json:"practitioner"`
	Message      string `json:"message"`
	Channel      string `json:"channel,omitempty"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_URL", "http://localhost:8080"),
		Practitioner: getEnv("SIM_PRACTITIONER", ""),
		Contenders:   getEnvInt("SIM_CONTENDERS", 1),
	}
	if cfg.Practitioner == "" {
		log.Fatal("SIM_PRACTITIONER is required (practitioner slug or UUID)")
	}

	client := &http.Client{Timeout: 15 * time.Second}

	scripts := map[string][]string{
		"book": {
			"hi",
			"I want to book an appointment",
			"tomorrow",
			"3pm",
			"Asha Rao",
			"9876543210",
			"yes",
		},
		"cancel": {
			"hi",
			"cancel my appointment",
			"9876543210",
			"1",
			"yes",
		},
		"reschedule": {
			"hi",
			"reschedule my appointment",
			"9876543210",
			"1",
			"day after tomorrow",
			"11am",
			"yes",
		},
	}

	for _, name := range []string{"book", "cancel", "reschedule"} {
		log.Printf("--- scripted conversation: %s ---", name)
		if err := runScript(client, cfg, name, scripts[name]); err != nil {
			log.Printf("script %s failed: %v", name, err)
		}
	}

	if cfg.Contenders > 1 {
		log.Printf("--- racing %d sessions for the same slot ---", cfg.Contenders)
		raceForSlot(client, cfg)
	}

	log.Println("simulator done")
}

func runScript(client *http.Client, cfg SimConfig, name string, lines []string) error {
	sessionID := ""
	for _, line := range lines {
		reply, sid, err := sendTurn(client, cfg, sessionID, line)
		if err != nil {
			return err
		}
		sessionID = sid
		fmt.Printf("[%s] > %s\n[%s] < %s\n", name, line, name, reply)
	}
	return nil
}

func raceForSlot(client *http.Client, cfg SimConfig) {
	script := []string{"hi", "book an appointment", "tomorrow", "4pm", "Race Tester", "9000000000", "yes"}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := ""
			var last string
			for _, line := range script {
				reply, sid, err := sendTurn(client, cfg, sessionID, line)
				if err != nil {
					log.Printf("contender %d: %v", n, err)
					return
				}
				sessionID = sid
				last = reply
			}
			log.Printf("contender %d final reply: %s", n, last)
		}(i)
	}
	wg.Wait()
}

func sendTurn(client *http.Client, cfg SimConfig, sessionID, message string) (reply, sid string, err error) {
	body, _ := json.Marshal(chatRequest{
		SessionID:    sessionID,
		Practitioner: cfg.Practitioner,
		Message:      message,
		Channel:      "simulate",
	})

	resp, err := client.Post(cfg.APIBaseURL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", "", err
	}
	return out.Reply, out.SessionID, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
