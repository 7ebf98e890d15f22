package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// DefaultPollInterval is how often a visible panel refreshes the ticket list
const DefaultPollInterval = 15 * time.Second

// PanelOption configures an OperatorPanel
type PanelOption func(*OperatorPanel)

// WithPollInterval sets the refresh period of Run
func WithPollInterval(d time.Duration) PanelOption {
	return func(p *OperatorPanel) { p.interval = d }
}

// WithFilter sets the listing filter used by Refresh
func WithFilter(f domain.EscalationFilter) PanelOption {
	return func(p *OperatorPanel) { p.filter = f }
}

// OnUpdate registers a callback invoked with every new snapshot
func OnUpdate(fn func(*domain.EscalationListResponse)) PanelOption {
	return func(p *OperatorPanel) { p.onUpdate = fn }
}

// OperatorPanel keeps an operator's view of the ticket queue in sync
type OperatorPanel struct {
	client   *Client
	interval time.Duration
	filter   domain.EscalationFilter
	onUpdate func(*domain.EscalationListResponse)

	mu       sync.Mutex
	token    string
	snapshot *domain.EscalationListResponse
	visible  bool
	polling  bool

	// wake nudges Run when visibility changes
	wake chan struct{}
}

// NewOperatorPanel creates a panel. It starts hidden and logged out.
func (c *Client) NewOperatorPanel(opts ...PanelOption) *OperatorPanel {
	p := &OperatorPanel{
		client:   c,
		interval: DefaultPollInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Login exchanges credentials for a token and loads the ticket list
func (p *OperatorPanel) Login(ctx context.Context, username, password string) error {
	var resp domain.LoginResponse
	err := p.client.do(ctx, http.MethodPost, "/api/operator/login", "", &domain.LoginRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		if StatusCode(err) == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return err
	}

	p.SetToken(resp.Token)
	_, err = p.Refresh(ctx)
	return err
}

// SetToken installs a previously issued token
func (p *OperatorPanel) SetToken(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

// LoggedIn reports whether the panel holds a token
func (p *OperatorPanel) LoggedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token != ""
}

// Snapshot returns the last ticket list loaded, or nil
func (p *OperatorPanel) Snapshot() *domain.EscalationListResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Refresh reloads the ticket list
func (p *OperatorPanel) Refresh(ctx context.Context) (*domain.EscalationListResponse, error) {
	q := url.Values{}
	if p.filter.Status != "" {
		q.Set("status", string(p.filter.Status))
	}
	if p.filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.filter.Limit))
	}
	if p.filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.filter.Offset))
	}
	path := "/api/operator/escalations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp domain.EscalationListResponse
	if err := p.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.snapshot = &resp
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(&resp)
	}
	return &resp, nil
}

// Ticket loads one ticket with its chat history
func (p *OperatorPanel) Ticket(ctx context.Context, id string) (*domain.Escalation, error) {
	var esc domain.Escalation
	if err := p.call(ctx, http.MethodGet, "/api/operator/escalations/"+url.PathEscape(id), nil, &esc); err != nil {
		return nil, err
	}
	return &esc, nil
}

// Reply answers a ticket and reloads the list. When the reply fails the
// snapshot is left as it was.
func (p *OperatorPanel) Reply(ctx context.Context, id, message string, closeTicket bool) (*domain.OperatorReplyResponse, error) {
	var resp domain.OperatorReplyResponse
	err := p.call(ctx, http.MethodPost, "/api/operator/reply", &domain.OperatorReplyRequest{
		EscalationID: id,
		Message:      message,
		CloseTicket:  closeTicket,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if _, err := p.Refresh(ctx); err != nil {
		p.client.logger.Warn("refresh after reply failed", zap.String("escalation_id", id), zap.Error(err))
	}
	return &resp, nil
}

// SetStatus changes a ticket's status and reloads the list
func (p *OperatorPanel) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Escalation, error) {
	var esc domain.Escalation
	err := p.call(ctx, http.MethodPost, "/api/operator/escalations/"+url.PathEscape(id)+"/status",
		&domain.StatusChangeRequest{Status: string(status)}, &esc)
	if err != nil {
		return nil, err
	}

	if _, err := p.Refresh(ctx); err != nil {
		p.client.logger.Warn("refresh after status change failed", zap.String("escalation_id", id), zap.Error(err))
	}
	return &esc, nil
}

// SetVisible starts or pauses polling. Becoming visible refreshes at once
// and restarts the poll interval; becoming hidden stops the ticker.
func (p *OperatorPanel) SetVisible(visible bool) {
	p.mu.Lock()
	changed := p.visible != visible
	p.visible = visible
	p.mu.Unlock()

	if changed {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

func (p *OperatorPanel) isVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *OperatorPanel) setPolling(on bool) {
	p.mu.Lock()
	p.polling = on
	p.mu.Unlock()
}

// Run polls the ticket list while the panel is visible and logged in,
// until ctx is done. No ticker runs while the panel is hidden.
func (p *OperatorPanel) Run(ctx context.Context) error {
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		p.setPolling(false)
	}()

	for {
		visible := p.isVisible()
		switch {
		case visible && ticker == nil:
			ticker = time.NewTicker(p.interval)
			p.setPolling(true)
		case !visible && ticker != nil:
			ticker.Stop()
			ticker = nil
			p.setPolling(false)
		}

		var tick <-chan time.Time
		if ticker != nil {
			tick = ticker.C
		}

		woken := false
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case <-p.wake:
			woken = true
		}

		if !p.isVisible() {
			continue
		}
		if woken && ticker != nil {
			// shown again before the loop saw the hide
			ticker.Reset(p.interval)
		}
		if !p.LoggedIn() {
			continue
		}
		if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.client.logger.Warn("ticket refresh failed", zap.Error(err))
		}
	}
}

// Watch streams ticket events to fn until ctx is done or the stream ends
func (p *OperatorPanel) Watch(ctx context.Context, fn func(*domain.TicketEvent)) error {
	token := p.currentToken()
	if token == "" {
		return ErrReauthRequired
	}

	req, err := p.client.newRequest(ctx, http.MethodGet, "/api/operator/escalations/stream", token, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// the stream outlives the request timeout
	hc := *p.client.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.checkAuth(decodeError(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && event == "ticket":
			var te domain.TicketEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &te); err != nil {
				p.client.logger.Warn("bad ticket event", zap.Error(err))
				continue
			}
			fn(&te)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func (p *OperatorPanel) currentToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// call performs an authenticated request. A 401 drops the token.
func (p *OperatorPanel) call(ctx context.Context, method, path string, in, out any) error {
	token := p.currentToken()
	if token == "" {
		return ErrReauthRequired
	}
	return p.checkAuth(p.client.do(ctx, method, path, token, in, out))
}

func (p *OperatorPanel) checkAuth(err error) error {
	if err == nil || StatusCode(err) != http.StatusUnauthorized {
		return err
	}
	p.SetToken("")
	return errors.Join(ErrReauthRequired, err)
}
