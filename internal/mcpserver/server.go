// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes the ledger as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marcelocantos/ledgerchain/internal/filter"
	"github.com/marcelocantos/ledgerchain/internal/ledger"
	"github.com/marcelocantos/ledgerchain/internal/store"
)

// Limits on logged decision text.
const (
	MaxDecisionLen  = 1000
	MaxRationaleLen = 2000
)

// RiskGrades are the accepted values of risk_grade for logged decisions.
var RiskGrades = []string{"L1", "L2", "L3"}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	Source  store.Options
	Mode    ledger.Mode
	Logger  *slog.Logger
}

// Server serves ledger tools over MCP.
type Server struct {
	opts Options
	log  *slog.Logger
	mcp  *server.MCPServer

	mu       sync.Mutex
	appender *store.Appender
}

// New builds a Server with its tools registered.
func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "ledgerchain"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		opts: opts,
		log:  log,
		mcp:  server.NewMCPServer(opts.Name, opts.Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func (s *Server) Serve() error {
	s.log.Info("mcp server listening on stdio", "name", s.opts.Name)
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("ledger_verify",
		mcp.WithDescription("Verify the hash chain of the decision ledger from genesis."),
		mcp.WithBoolean("all",
			mcp.Description("Report every break instead of stopping at the first."),
		),
	), s.handleVerify)

	s.mcp.AddTool(mcp.NewTool("ledger_log_decision",
		mcp.WithDescription("Append a decision record to the ledger."),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.MaxLength(MaxDecisionLen),
			mcp.Description("The decision made"),
		),
		mcp.WithString("rationale",
			mcp.Required(),
			mcp.MaxLength(MaxRationaleLen),
			mcp.Description("Justification for the decision"),
		),
		mcp.WithString("risk_grade",
			mcp.Required(),
			mcp.Enum(RiskGrades...),
		),
		mcp.WithString("decision_type",
			mcp.Description("Category of decision (default: proposal)"),
		),
		mcp.WithString("approver",
			mcp.Description("Approving party (default: mcp:external)"),
		),
	), s.handleLogDecision)

	s.mcp.AddTool(mcp.NewTool("ledger_show",
		mcp.WithDescription("List recent ledger entries as JSON."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries, most recent last (default 20, 0 for all)"),
		),
		mcp.WithString("where",
			mcp.Description(`Starlark filter expression, e.g. risk_grade == "L3"`),
		),
	), s.handleShow)
}

func (s *Server) entries(ctx context.Context) ([]ledger.Entry, error) {
	src, err := store.Open(s.opts.Source)
	if err != nil {
		return nil, err
	}
	return src.Entries(ctx)
}

func (s *Server) handleVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := ledger.ModeFailFast
	if req.GetBool("all", s.opts.Mode == ledger.ModeExhaustive) {
		mode = ledger.ModeExhaustive
	}

	entries, err := s.entries(ctx)
	if err != nil {
		return errorResult("ledger_verify", err), nil
	}
	report, err := ledger.Verify(entries, mode)
	if err != nil {
		return errorResult("ledger_verify", err), nil
	}

	v := report.Verdict()
	if !v.Valid {
		s.log.Warn("ledger chain broken", "entry", v.EntryID, "position", v.Index)
	}
	if mode == ledger.ModeExhaustive && !v.Valid {
		text := v.Report
		for _, b := range report.Breaks {
			text += fmt.Sprintf("\nposition %d: entry %s", b.Index, b.EntryID)
		}
		return mcp.NewToolResultText(text), nil
	}
	return mcp.NewToolResultText(v.Report), nil
}

func (s *Server) handleLogDecision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decision, err := req.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rationale, err := req.RequireString("rationale")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	grade, err := req.RequireString("risk_grade")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n := utf8.RuneCountInString(decision); n > MaxDecisionLen {
		return mcp.NewToolResultError(fmt.Sprintf("decision is %d characters (max %d)", n, MaxDecisionLen)), nil
	}
	if n := utf8.RuneCountInString(rationale); n > MaxRationaleLen {
		return mcp.NewToolResultError(fmt.Sprintf("rationale is %d characters (max %d)", n, MaxRationaleLen)), nil
	}
	if !validGrade(grade) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid risk_grade %q (want L1, L2, or L3)", grade)), nil
	}

	a, err := s.getAppender()
	if err != nil {
		return errorResult("ledger_log_decision", err), nil
	}
	e, err := a.Append(ctx, ledger.Record{
		DecisionType: req.GetString("decision_type", "proposal"),
		Decision:     decision,
		Rationale:    rationale,
		Approver:     req.GetString("approver", "mcp:external"),
		RiskGrade:    grade,
	})
	if err != nil {
		return errorResult("ledger_log_decision", err), nil
	}
	h, _ := e.Hash()
	s.log.Info("decision logged", "entry", e.ID(), "risk_grade", grade)
	return mcp.NewToolResultText(fmt.Sprintf("Logged entry %s (hash: %s)", e.ID(), h)), nil
}

func (s *Server) handleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	var f *filter.Filter
	if where := req.GetString("where", ""); where != "" {
		var err error
		if f, err = filter.Compile(where); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	entries, err := s.entries(ctx)
	if err != nil {
		return errorResult("ledger_show", err), nil
	}
	entries, err = filter.Apply(entries, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// getAppender opens the JSONL appender on first use.
func (s *Server) getAppender() (*store.Appender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appender != nil {
		return s.appender, nil
	}
	if f := s.opts.Source.Resolve(); f != store.FormatJSONL {
		return nil, fmt.Errorf("only jsonl ledgers can be appended to (ledger is %s)", f)
	}
	a, err := store.NewAppender(s.opts.Source.Path)
	if err != nil {
		return nil, err
	}
	s.appender = a
	return a, nil
}

func validGrade(g string) bool {
	for _, v := range RiskGrades {
		if g == v {
			return true
		}
	}
	return false
}

// errorResult turns a structural failure into a tool error, keeping
// source failures and malformed entries distinguishable from a verdict.
func errorResult(tool string, err error) *mcp.CallToolResult {
	var sre *store.SourceReadError
	var mfe *ledger.MissingFieldError
	switch {
	case errors.As(err, &sre):
		return mcp.NewToolResultError(fmt.Sprintf("%s: source error: %v", tool, err))
	case errors.As(err, &mfe):
		return mcp.NewToolResultError(fmt.Sprintf("%s: malformed entry: %v", tool, err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", tool, err))
	}
}
