package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/medkiosk/consult-core/config"
)

// Notifier delivers a call notification to a doctor's device. Delivery is
// best-effort: the relay accepts the payload and makes no guarantee it
// arrives.
type Notifier interface {
	Send(ctx context.Context, token, patientName, roomID, requestID, origin string) error
}

// HTTPNotifier posts call notifications to the push-relay service.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNotifier(cfg config.NotifierConfig) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type callNotification struct {
	FCMToken    string `json:"fcmToken"`
	PatientName string `json:"patientName"`
	RoomID      string `json:"roomId"`
	RequestID   string `json:"requestId"`
	Origin      string `json:"origin"`
}

func (n *HTTPNotifier) Send(ctx context.Context, token, patientName, roomID, requestID, origin string) error {
	body, err := json.Marshal(callNotification{
		FCMToken:    token,
		PatientName: patientName,
		RoomID:      roomID,
		RequestID:   requestID,
		Origin:      origin,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/send-call", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send call notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification relay returned status %d", resp.StatusCode)
	}
	return nil
}
