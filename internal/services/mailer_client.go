package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soasign/backend/internal/soaerr"
)

// MailerClient talks to the internal mail delivery service. It is the one
// concrete Sender; everything upstream only sees the interface.
type MailerClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewMailerClient(baseURL string, log *zap.Logger) *MailerClient {
	return &MailerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type mailerSendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type mailerErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *MailerClient) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(mailerSendRequest{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return err
	}

	url := c.baseURL + "/internal/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return soaerr.Delivery(fmt.Errorf("mailer unavailable: %w", err), false)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var mailerErr mailerErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&mailerErr); err == nil && mailerErr.Code == "suppressed" {
			return soaerr.Delivery(fmt.Errorf("mailer rejected recipient: %s", mailerErr.Error), true)
		}
		return soaerr.Delivery(fmt.Errorf("mailer rejected message: %s", mailerErr.Error), false)
	default:
		body, _ := io.ReadAll(resp.Body)
		return soaerr.Delivery(fmt.Errorf("mailer returned %d: %s", resp.StatusCode, string(body)), false)
	}
}
