// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"picme-bot/internal/bot"
	"picme-bot/internal/models"
	"picme-bot/internal/whatsapp"
	"picme-bot/pkg/logger"
)

const markerRetention = 14 * 24 * time.Hour

// Maintainer is the slice of the record store the maintenance route needs.
type Maintainer interface {
	PurgeExpiredMarkers(ctx context.Context, retention time.Duration) error
}

type Server struct {
	server      *http.Server
	dispatcher  *bot.Dispatcher
	maintainer  Maintainer
	verifyToken string
	numberID    string
	logger      *logger.Logger
}

func NewServer(port, verifyToken, numberID string, dispatcher *bot.Dispatcher, maintainer Maintainer, l *logger.Logger) *Server {
	s := &Server{
		dispatcher:  dispatcher,
		maintainer:  maintainer,
		verifyToken: verifyToken,
		numberID:    numberID,
		logger:      l.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/whatsapp", s.handleWhatsApp)
	mux.HandleFunc("/webhook/payment", s.handlePayment)
	mux.HandleFunc("/webhook/tune-images", s.handleTuneImages)
	mux.HandleFunc("/maintenance", s.handleMaintenance)

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// handleWhatsApp answers the Meta verification handshake on GET and fans
// incoming messages out to independent handler goroutines on POST. The 200
// goes back immediately so the provider does not redeliver on slow handling.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
			w.Write([]byte(q.Get("hub.challenge")))
			return
		}
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	messages, err := whatsapp.ParseWebhook(body, s.numberID)
	if err != nil {
		s.logger.Error("Failed to parse webhook", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	for _, msg := range messages {
		go s.dispatch(msg)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) dispatch(msg models.IncomingMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Recovered from panic in message handler", "message_id", msg.MessageID, "panic", rec)
		}
	}()
	s.dispatcher.HandleMessage(context.Background(), msg)
}

// paymentWebhook is the payment provider's notification shape. Every
// property rides as an array; the declared tier sits in the first line
// item's name.
type paymentWebhook struct {
	EntityID   json.Number `json:"EntityID"`
	Properties struct {
		Phone    []string `json:"Property_M-5"`
		FullName []string `json:"Property_M-10"`
		Items    []struct {
			Name string `json:"Name"`
		} `json:"Property_M-3"`
	} `json:"Properties"`
}

func parsePaymentWebhook(body []byte) (models.PaymentNotification, error) {
	var hook paymentWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return models.PaymentNotification{}, err
	}
	notification := models.PaymentNotification{PaymentID: hook.EntityID.String()}
	if len(hook.Properties.Phone) > 0 {
		notification.Phone = hook.Properties.Phone[0]
	}
	if len(hook.Properties.FullName) > 0 {
		notification.FullName = hook.Properties.FullName[0]
	}
	if len(hook.Properties.Items) > 0 {
		notification.Tier = hook.Properties.Items[0].Name
	}
	return notification, nil
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	notification, err := parsePaymentWebhook(body)
	if err != nil {
		s.logger.Error("Failed to parse payment webhook", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Recovered from panic in payment handler", "payment_id", notification.PaymentID, "panic", rec)
			}
		}()
		s.dispatcher.HandlePayment(context.Background(), notification)
	}()
	w.WriteHeader(http.StatusOK)
}

// tunePrompt is one finished prompt from the generation service callback.
type tunePrompt struct {
	Prompt struct {
		Images []string `json:"images"`
	} `json:"prompt"`
}

// handleTuneImages receives finished pack images from the generation
// service. The body is either a single prompt or a list of them.
func (s *Server) handleTuneImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	phone := r.URL.Query().Get("phone_number")
	if phone == "" {
		http.Error(w, "missing phone_number", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var urls []string
	var single tunePrompt
	if err := json.Unmarshal(body, &single); err == nil && len(single.Prompt.Images) > 0 {
		urls = single.Prompt.Images
	} else {
		var many []tunePrompt
		if err := json.Unmarshal(body, &many); err != nil {
			s.logger.Error("Failed to parse tune callback", "phone", phone, "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		for _, p := range many {
			urls = append(urls, p.Prompt.Images...)
		}
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Recovered from panic in tune callback", "phone", phone, "panic", rec)
			}
		}()
		s.dispatcher.HandleTuneImages(context.Background(), phone, urls)
	}()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.maintainer.PurgeExpiredMarkers(r.Context(), markerRetention); err != nil {
		s.logger.Error("Failed to purge expired markers", "error", err)
		http.Error(w, "purge failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
