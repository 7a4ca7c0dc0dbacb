package digest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/internal/store"
	"github.com/sells-group/builder-radar/pkg/telegram"
)

// DefaultTopN is the number of opportunities in a digest.
const DefaultTopN = 3

// Lister reads ranked opportunities.
type Lister interface {
	ListTop(ctx context.Context, opts store.ListOpts) ([]model.Opportunity, error)
}

// Config configures a Service.
type Config struct {
	ChatID    string
	ParseMode string
	SiteURL   string
	TopN      int
	Timeout   time.Duration
}

// Result reports a digest invocation.
type Result struct {
	Success   bool   `json:"success"`
	Delivered bool   `json:"delivered"`
	Projects  int    `json:"projects"`
	MessageID int64  `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Service selects, renders, and delivers the digest.
type Service struct {
	store  Lister
	client telegram.Client
	cfg    Config
}

// NewService creates a digest Service. client may be nil for dry runs.
func NewService(st Lister, client telegram.Client, cfg Config) *Service {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = telegram.ParseModeHTML
	}
	return &Service{store: st, client: client, cfg: cfg}
}

// Select returns up to TopN scored opportunities, best first.
func (s *Service) Select(ctx context.Context) ([]model.Opportunity, error) {
	opps, err := s.store.ListTop(ctx, store.ListOpts{Limit: s.cfg.TopN, ScoredOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "digest: list top")
	}
	return opps, nil
}

// Run composes the digest and, unless dryRun is set, delivers it. With no
// scored opportunities nothing is sent. A delivery failure is returned as a
// *fault.ProviderError from the messaging provider and is not retried.
func (s *Service) Run(ctx context.Context, dryRun bool) (*Result, error) {
	log := zap.L().With(zap.String("stage", "digest"), zap.Bool("dry_run", dryRun))

	opps, err := s.Select(ctx)
	if err != nil {
		return &Result{Error: err.Error()}, err
	}

	msg := Compose(opps, s.cfg.SiteURL)
	res := &Result{Projects: len(opps), Message: msg}

	if len(opps) == 0 {
		log.Info("digest: no scored opportunities, skipping delivery")
		res.Success = true
		return res, nil
	}
	if dryRun {
		res.Success = true
		return res, nil
	}
	if s.client == nil {
		err := eris.New("digest: no messaging client configured")
		res.Error = err.Error()
		return res, err
	}

	sendCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	sent, err := s.client.SendMessage(sendCtx, telegram.SendMessageRequest{
		ChatID:                s.cfg.ChatID,
		Text:                  msg,
		ParseMode:             s.cfg.ParseMode,
		DisableWebPagePreview: true,
	})
	if err != nil {
		log.Error("digest: delivery failed", zap.Error(err))
		err = eris.Wrap(err, "digest: deliver")
		res.Error = err.Error()
		return res, err
	}

	res.Success = true
	res.Delivered = true
	if sent != nil {
		res.MessageID = sent.MessageID
	}
	log.Info("digest: delivered", zap.Int("projects", len(opps)), zap.Int64("message_id", res.MessageID))
	return res, nil
}
