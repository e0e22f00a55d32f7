package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"gitmirror/internal"
	"gitmirror/pkg/storage"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-playground/webhooks/v6/gitlab"
)

// Provider is the tag repositories and installations are registered under.
const Provider = "gitlab"

type eventHandler interface {
	handle(ctx context.Context, inst *storage.InstallRecord, org storage.OrganizationRecord, body []byte, requestID string, logger *log.Logger) error
}

// GitLabHandler ingests GitLab webhook deliveries: it authenticates the
// request against the per-installation token, routes the event, and runs
// the matched handler once per organization served by the installation.
type GitLabHandler struct {
	installations storage.InstallationStore
	repositories  storage.RepositoryStore
	activity      storage.ActivityStore
	ignore        *internal.IgnoreEngine
	publisher     internal.Publisher
	logger        *log.Logger
	maxBody       int64
	debugEvents   bool
	topicPrefix   string
	handlers      map[string]eventHandler
}

// Options configures a GitLabHandler beyond its collaborators.
type Options struct {
	Logger      *log.Logger
	MaxBody     int64
	DebugEvents bool
	TopicPrefix string
}

// NewGitLabHandler creates a GitLabHandler. The event registry is closed:
// supporting another event type is a code change here.
func NewGitLabHandler(installs storage.InstallationStore, repos storage.RepositoryStore, activity storage.ActivityStore, ignore *internal.IgnoreEngine, publisher internal.Publisher, opts Options) *GitLabHandler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	topicPrefix := opts.TopicPrefix
	if topicPrefix == "" {
		topicPrefix = "gitmirror"
	}
	handler := &GitLabHandler{
		installations: installs,
		repositories:  repos,
		activity:      activity,
		ignore:        ignore,
		publisher:     publisher,
		logger:        logger,
		maxBody:       opts.MaxBody,
		debugEvents:   opts.DebugEvents,
		topicPrefix:   topicPrefix,
	}
	handler.handlers = map[string]eventHandler{
		string(gitlab.PushEvents):         &pushHook{handler},
		string(gitlab.MergeRequestEvents): &mergeHook{handler},
	}
	return handler
}

// ServeHTTP handles one webhook delivery.
func (h *GitLabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		internal.IncRequest("method_not_allowed")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Printf("read body failed: %v", err)
		internal.IncRequest("bad_request")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	inst, err := h.authenticate(ctx, r.Header.Get("X-Gitlab-Token"))
	if err != nil {
		// All auth failures look identical to the sender; the logs keep
		// the stages apart for operators.
		var authErr *AuthError
		if errors.As(err, &authErr) {
			logger.Printf("auth rejected: %s", authErr.Reason)
			internal.IncAuthFailure(authErr.Reason)
		} else {
			logger.Printf("auth lookup failed: %v", err)
		}
		internal.IncRequest("unauthorized")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !json.Valid(body) {
		logger.Printf("undecodable payload external_id=%s", inst.ExternalID)
		internal.IncRequest("bad_payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventName := r.Header.Get("X-Gitlab-Event")
	handler, ok := h.handlers[eventName]
	if !ok {
		routingErr := &RoutingError{Event: eventName}
		logger.Printf("%v external_id=%s", routingErr, inst.ExternalID)
		internal.IncRequest("unsupported_event")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if h.debugEvents {
		logger.Printf("event=%q external_id=%s payload=%s", eventName, inst.ExternalID, truncate(body, 2048))
	}

	orgs, err := h.installations.Organizations(ctx, inst.ID)
	if err != nil {
		logger.Printf("organizations lookup failed external_id=%s: %v", inst.ExternalID, err)
		internal.IncRequest("error")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Organizations are independent: one failing delivery must not stop
	// the others, and the provider only learns that the hook was received.
	for _, org := range orgs {
		if err := handler.handle(ctx, inst, org, body, reqID, logger); err != nil {
			logger.Printf("event=%q organization=%s dropped: %v", eventName, org.Slug, err)
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				internal.IncParseError(eventName)
			} else {
				internal.IncHandlerError(eventName)
			}
		}
	}

	internal.IncRequest("ok")
	w.WriteHeader(http.StatusNoContent)
}

// authenticate extracts the opaque token, resolves the installation it
// names, and verifies the embedded secret in constant time.
func (h *GitLabHandler) authenticate(ctx context.Context, token string) (*storage.InstallRecord, error) {
	// GitLab hook payloads don't carry enough context to find our
	// installation, so the external id is embedded in the token itself as
	// instance:group_path:secret.
	parts := strings.Split(token, ":")
	if token == "" || len(parts) != 3 {
		return nil, &AuthError{Reason: ReasonMalformedToken}
	}
	externalID := parts[0] + ":" + parts[1]
	secret := parts[2]

	inst, err := h.installations.GetByExternalID(ctx, Provider, externalID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, &AuthError{Reason: ReasonUnknownInstallation}
	}

	if subtle.ConstantTimeCompare([]byte(secret), []byte(inst.WebhookSecret)) != 1 {
		return nil, &AuthError{Reason: ReasonBadSecret}
	}
	return inst, nil
}

// publish announces a completed write downstream. Failures are logged and
// counted but never fail the webhook.
func (h *GitLabHandler) publish(ctx context.Context, name string, event internal.Event, logger *log.Logger) {
	if h.publisher == nil {
		return
	}
	event.Provider = Provider
	event.Name = name
	topic := h.topicPrefix + "." + name
	if err := h.publisher.Publish(ctx, topic, event); err != nil {
		logger.Printf("publish %s failed: %v", topic, err)
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return watermill.NewShortUUID()
}

func truncate(data []byte, max int) string {
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
