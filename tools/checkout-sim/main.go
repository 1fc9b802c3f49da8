// checkout-sim drives the engine's settlement endpoints from the command
// line: check out an appointment, charge a cancellation fee, or trigger a
// no-show sweep. Useful for poking a local stack without a frontend.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func main() {
	var (
		baseURL       = flag.String("base-url", getenv("BASE_URL", "http://localhost:8090"), "scheduling engine base url")
		action        = flag.String("action", "checkout", "checkout | fee | reconcile")
		appointmentID = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment to act on")
		paymentMethod = flag.String("payment-method", "card", "checkout payment method")
		clientService = flag.String("client-service-id", "", "client service for session_pack checkout")
		tipCents      = flag.Int64("tip-cents", 0, "tip in cents")
		feeType       = flag.String("fee-type", "no_show", "late_cancel | no_show")
	)
	flag.Parse()

	var path string
	var body map[string]any
	switch *action {
	case "checkout":
		if strings.TrimSpace(*appointmentID) == "" {
			fatal("APPOINTMENT_ID is required")
		}
		path = "/v1/checkout"
		body = map[string]any{
			"appointment_id": *appointmentID,
			"payment_method": *paymentMethod,
			"tip_cents":      *tipCents,
		}
		if *clientService != "" {
			body["client_service_id"] = *clientService
		}
	case "fee":
		if strings.TrimSpace(*appointmentID) == "" {
			fatal("APPOINTMENT_ID is required")
		}
		path = "/v1/cancellation-fee"
		body = map[string]any{
			"appointment_id": *appointmentID,
			"fee_type":       *feeType,
		}
	case "reconcile":
		path = "/internal/reconcile"
		body = map[string]any{}
	default:
		fatal("unsupported action: " + *action)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d\n%s\n", resp.StatusCode, strings.TrimSpace(string(out)))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
