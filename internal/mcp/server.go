package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"focuscycle/internal/core"
	"focuscycle/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "focuscycle"
	serverVersion = "1.0.0"
	toolCount     = 5
)

// MCPServer exposes the cycle store as MCP tools.
type MCPServer struct {
	cycles   *core.CycleStore
	journal  *store.Store
	logger   *slog.Logger
	location *time.Location
	server   *server.MCPServer
}

// NewMCPServer creates a new MCP server instance. journal may be nil, in which
// case cycle_journal reports that the archive is unavailable.
func NewMCPServer(cycles *core.CycleStore, journal *store.Store, logger *slog.Logger, location *time.Location) *MCPServer {
	if location == nil {
		location = time.Local
	}
	s := &MCPServer{
		cycles:   cycles,
		journal:  journal,
		logger:   logger,
		location: location,
	}
	s.server = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Run serves the tools over stdio until stdin closes.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.server)
}

// Handler serves the tools over streamable HTTP.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("cycle_create",
		mcp.WithDescription("Start a focus cycle. Any cycle still running is interrupted first."),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("What you are working on"),
		),
		mcp.WithNumber("minutes_amount",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Cycle length in whole minutes (%d-%d)", core.MinMinutesAmount, core.MaxMinutesAmount)),
			mcp.Min(core.MinMinutesAmount),
			mcp.Max(core.MaxMinutesAmount),
		),
	), s.handleCreateCycle)

	s.server.AddTool(mcp.NewTool("cycle_interrupt",
		mcp.WithDescription("Interrupt the running cycle, if any"),
	), s.handleInterruptCycle)

	s.server.AddTool(mcp.NewTool("cycle_status",
		mcp.WithDescription("Show the running cycle and its countdown"),
	), s.handleStatus)

	s.server.AddTool(mcp.NewTool("cycle_history",
		mcp.WithDescription("List the cycles started since the daemon came up"),
		mcp.WithString("status",
			mcp.Description("Only list cycles in this state"),
			mcp.Enum(string(core.CycleStatusRunning), string(core.CycleStatusCompleted), string(core.CycleStatusInterrupted)),
		),
	), s.handleHistory)

	s.server.AddTool(mcp.NewTool("cycle_journal",
		mcp.WithDescription("Page through the archived cycle journal, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Number of records, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
		mcp.WithNumber("offset",
			mcp.Description("Records to skip"),
			mcp.Min(0),
		),
	), s.handleJournal)

	s.logger.Debug("MCP tools registered", "count", toolCount)
}

func (s *MCPServer) handleCreateCycle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := mcp.ParseString(request, "task", "")
	minutes := mcp.ParseFloat64(request, "minutes_amount", 0)
	if minutes != math.Trunc(minutes) {
		return mcp.NewToolResultError("invalid minutes_amount: must be a whole number"), nil
	}

	cycle, err := s.cycles.CreateCycle(core.CreateCycleInput{Task: task, MinutesAmount: int(minutes)})
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return mcp.NewToolResultError(ve.Error()), nil
		}
		s.logger.Error("create cycle", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to create cycle: %v", err)), nil
	}

	s.logger.Info("cycle started", "cycle_id", cycle.ID, "minutes", cycle.MinutesAmount, "via", "mcp")
	return mcp.NewToolResultText(fmt.Sprintf("Cycle started\nID: %s\nTask: %s\nEnds at: %s",
		cycle.ID,
		cycle.Task,
		s.formatTime(cycle.StartDate.Add(time.Duration(cycle.TargetSeconds())*time.Second)),
	)), nil
}

func (s *MCPServer) handleInterruptCycle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycle, ok := s.cycles.InterruptActiveCycle()
	if !ok {
		return mcp.NewToolResultText("No cycle is running"), nil
	}
	s.logger.Info("cycle interrupted", "cycle_id", cycle.ID, "via", "mcp")
	at, _ := cycle.InterruptedDate()
	return mcp.NewToolResultText(fmt.Sprintf("Cycle interrupted\nID: %s\nTask: %s\nAt: %s", cycle.ID, cycle.Task, s.formatTime(at))), nil
}

func (s *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.cycles.Snapshot()
	if snap.ActiveCycle == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No cycle is running (%s)", snap.Countdown.Title())), nil
	}
	c := snap.ActiveCycle
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", snap.Countdown.Title(), c.Task)
	fmt.Fprintf(&b, "ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Started: %s\n", s.formatTime(c.StartDate))
	fmt.Fprintf(&b, "Elapsed: %ds of %ds\n", snap.ElapsedSeconds, c.TargetSeconds())
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := core.CycleStatus(mcp.ParseString(request, "status", ""))

	var cycles []core.Cycle
	for _, c := range s.cycles.Cycles() {
		if filter == "" || c.Status == filter {
			cycles = append(cycles, c)
		}
	}
	if len(cycles) == 0 {
		return mcp.NewToolResultText("No cycles found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d cycles:\n\n", len(cycles))
	for _, c := range cycles {
		s.writeCycle(&b, c)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleJournal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.journal == nil {
		return mcp.NewToolResultError("journal is disabled"), nil
	}
	limit := int(mcp.ParseFloat64(request, "limit", 20))
	offset := int(mcp.ParseFloat64(request, "offset", 0))

	records, err := s.journal.ListCycles(ctx, limit, offset)
	if err != nil {
		s.logger.Error("list journal", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to read journal: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("Journal is empty"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d journal records:\n\n", len(records))
	for _, rec := range records {
		s.writeCycle(&b, rec.Cycle)
		if rec.Cycle.IsTerminal() {
			fmt.Fprintf(&b, "  Elapsed: %ds\n", rec.ElapsedSeconds)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) writeCycle(b *strings.Builder, c core.Cycle) {
	fmt.Fprintf(b, "[%s] %s\n", statusToIcon(c.Status), c.ID)
	fmt.Fprintf(b, "  Task: %s (%d min)\n", truncateString(c.Task, 60), c.MinutesAmount)
	fmt.Fprintf(b, "  Started: %s\n", s.formatTime(c.StartDate))
	if at, ok := c.FinishedDate(); ok {
		fmt.Fprintf(b, "  Finished: %s\n", s.formatTime(at))
	}
	if at, ok := c.InterruptedDate(); ok {
		fmt.Fprintf(b, "  Interrupted: %s\n", s.formatTime(at))
	}
}

func (s *MCPServer) formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(s.location).Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func statusToIcon(status core.CycleStatus) string {
	switch status {
	case core.CycleStatusCompleted:
		return "✅"
	case core.CycleStatusInterrupted:
		return "🚫"
	case core.CycleStatusRunning:
		return "▶️"
	default:
		return "❓"
	}
}
