package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ianibsm/Synapz/internal/domain"
)

// Field names in the external base. The match is exact and case-sensitive;
// no normalization is applied on either side.
const (
	fieldStakeholder = "Stakeholder"
	fieldProject     = "Project"
	fieldStatus      = "Status"
	fieldSessionID   = "SessionID"
	fieldSender      = "Sender"
	fieldText        = "Text"
)

// AirtableConfig holds connection settings for the external tabular store.
type AirtableConfig struct {
	BaseURL       string // e.g. https://api.airtable.com/v0
	APIKey        string
	BaseID        string
	SessionsTable string
	MessagesTable string
}

// AirtableStore implements Repository against an Airtable-compatible HTTP API.
// It speaks two operations: select(table, filterFormula, maxRecords) and
// create(table, fields). All persisted state lives in the external base;
// nothing is cached locally.
type AirtableStore struct {
	httpClient *http.Client
	cfg        AirtableConfig
}

// NewAirtable creates a store client for the external tabular store.
// No timeout is set on the HTTP client; callers control lifetime via ctx.
func NewAirtable(cfg AirtableConfig) (*AirtableStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("airtable base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("airtable API key is required")
	}
	if cfg.BaseID == "" {
		return nil, fmt.Errorf("airtable base ID is required")
	}
	if cfg.SessionsTable == "" || cfg.MessagesTable == "" {
		return nil, fmt.Errorf("airtable table names are required")
	}
	return &AirtableStore{
		httpClient: &http.Client{},
		cfg:        cfg,
	}, nil
}

type airtableRecord struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

type airtableRecordList struct {
	Records []airtableRecord `json:"records"`
}

// FindSession returns the first session matching the pair, or nil.
func (s *AirtableStore) FindSession(ctx context.Context, stakeholderID, projectID string) (*domain.Session, error) {
	formula := fmt.Sprintf("AND({%s}='%s',{%s}='%s')",
		fieldStakeholder, escapeFormulaValue(stakeholderID),
		fieldProject, escapeFormulaValue(projectID),
	)
	records, err := s.selectRecords(ctx, s.cfg.SessionsTable, formula, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return sessionFromRecord(records[0]), nil
}

// CreateSession creates a new session record.
func (s *AirtableStore) CreateSession(ctx context.Context, stakeholderID, projectID string, status domain.SessionStatus) (*domain.Session, error) {
	rec, err := s.createRecord(ctx, s.cfg.SessionsTable, map[string]any{
		fieldStakeholder: stakeholderID,
		fieldProject:     projectID,
		fieldStatus:      string(status),
	})
	if err != nil {
		return nil, err
	}
	return sessionFromRecord(*rec), nil
}

// CreateMessage appends one message record linked to the session.
func (s *AirtableStore) CreateMessage(ctx context.Context, sessionID, sender, text string) (*domain.Message, error) {
	rec, err := s.createRecord(ctx, s.cfg.MessagesTable, map[string]any{
		fieldSessionID: sessionID,
		fieldSender:    sender,
		fieldText:      text,
	})
	if err != nil {
		return nil, err
	}
	return messageFromRecord(*rec), nil
}

// MessagesBySession returns the session's messages in creation order.
func (s *AirtableStore) MessagesBySession(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	formula := fmt.Sprintf("{%s}='%s'", fieldSessionID, escapeFormulaValue(sessionID))
	records, err := s.selectRecords(ctx, s.cfg.MessagesTable, formula, 0)
	if err != nil {
		return nil, err
	}
	messages := make([]*domain.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, messageFromRecord(rec))
	}
	return messages, nil
}

// Ping issues a minimal select against the sessions table.
func (s *AirtableStore) Ping(ctx context.Context) error {
	_, err := s.selectRecords(ctx, s.cfg.SessionsTable, "", 1)
	return err
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (s *AirtableStore) Close() error { return nil }

func (s *AirtableStore) tableURL(table string) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + url.PathEscape(s.cfg.BaseID) + "/" + url.PathEscape(table)
}

func (s *AirtableStore) selectRecords(ctx context.Context, table, formula string, maxRecords int) ([]airtableRecord, error) {
	u := s.tableURL(table)
	q := url.Values{}
	if formula != "" {
		q.Set("filterByFormula", formula)
	}
	if maxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(maxRecords))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build select request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("select", table, resp)
	}

	var list airtableRecordList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode select %s response: %w", table, err)
	}
	return list.Records, nil
}

func (s *AirtableStore) createRecord(ctx context.Context, table string, fields map[string]any) (*airtableRecord, error) {
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("encode create %s payload: %w", table, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tableURL(table), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusError("create", table, resp)
	}

	var rec airtableRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode create %s response: %w", table, err)
	}
	return &rec, nil
}

func statusError(op, table string, resp *http.Response) error {
	// Keep a short excerpt of the body for the server log; it is never
	// surfaced to callers.
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: status %d: %s", op, table, resp.StatusCode, strings.TrimSpace(string(excerpt)))
}

// escapeFormulaValue escapes a value for interpolation into a single-quoted
// filterByFormula string literal.
func escapeFormulaValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

func sessionFromRecord(rec airtableRecord) *domain.Session {
	return &domain.Session{
		ID:          rec.ID,
		Stakeholder: fieldString(rec.Fields, fieldStakeholder),
		Project:     fieldString(rec.Fields, fieldProject),
		Status:      domain.SessionStatus(fieldString(rec.Fields, fieldStatus)),
	}
}

func messageFromRecord(rec airtableRecord) *domain.Message {
	return &domain.Message{
		ID:        rec.ID,
		SessionID: fieldString(rec.Fields, fieldSessionID),
		Sender:    fieldString(rec.Fields, fieldSender),
		Text:      fieldString(rec.Fields, fieldText),
	}
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
