// The mcp-server binary exposes the marketplace's read-side operations as MCP
// tools: campaign completion validation and creator analytics. It speaks the
// protocol over stdio so agent frontends can inspect marketplace state
// without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/analytics"
	"github.com/clipbid/marketplace/internal/config"
	"github.com/clipbid/marketplace/internal/db"
	"github.com/clipbid/marketplace/internal/logic"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

type ValidateCampaignInput struct {
	CampaignID string `json:"campaign_id"`
}

type CreatorAnalyticsInput struct {
	CreatorID string    `json:"creator_id"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	Top       int       `json:"top,omitempty"`
}

// MarketplaceServer holds the dependencies behind the MCP tools.
type MarketplaceServer struct {
	store  store.Store
	logger *zap.Logger
}

// ValidateCampaign runs the completion validator over a campaign draft.
func (s *MarketplaceServer) ValidateCampaign(ctx context.Context, req *mcp.CallToolRequest, input ValidateCampaignInput) (*mcp.CallToolResult, logic.CompletionReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := s.store.GetCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, logic.CompletionReport{}, fmt.Errorf("load campaign %s: %w", input.CampaignID, err)
	}
	report := logic.EvaluateCompletion(c)
	s.logger.Info("validated campaign",
		zap.String("campaign_id", c.ID),
		zap.Int("completed", report.Completed),
		zap.Int("total", report.Total))
	return nil, report, nil
}

// CreatorAnalytics aggregates a creator's submissions and payouts.
func (s *MarketplaceServer) CreatorAnalytics(ctx context.Context, req *mcp.CallToolRequest, input CreatorAnalyticsInput) (*mcp.CallToolResult, analytics.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	subs, err := s.store.ListSubmissionsByCreator(ctx, input.CreatorID)
	if err != nil {
		return nil, analytics.Summary{}, fmt.Errorf("load submissions for %s: %w", input.CreatorID, err)
	}
	payouts, err := s.store.ListPayoutsByCreator(ctx, input.CreatorID)
	if err != nil {
		return nil, analytics.Summary{}, fmt.Errorf("load payouts for %s: %w", input.CreatorID, err)
	}

	top := input.Top
	if top == 0 {
		top = 5
	}
	window := analytics.TimeRange{From: input.From, To: input.To}
	return nil, analytics.Summarize(input.CreatorID, subs, payouts, window, top), nil
}

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService("marketplace-mcp")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	var st store.Store
	if cfg.StoreBackend == "memory" {
		st = store.NewMemoryStore()
		logger.Info("Using in-memory store")
	} else {
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()
		st = pg
	}

	mpServer := &MarketplaceServer{store: st, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "marketplace",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_campaign",
		Description: "Report per-section completeness of a campaign draft",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"campaign_id": map[string]interface{}{
					"type":        "string",
					"description": "Campaign ID to validate",
				},
			},
			"required": []string{"campaign_id"},
		},
	}, mpServer.ValidateCampaign)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "creator_analytics",
		Description: "Aggregate a creator's submissions and payouts into reporting metrics",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"creator_id": map[string]interface{}{
					"type":        "string",
					"description": "Creator ID to aggregate",
				},
				"from": map[string]interface{}{
					"type":        "string",
					"format":      "date-time",
					"description": "Window start (optional)",
				},
				"to": map[string]interface{}{
					"type":        "string",
					"format":      "date-time",
					"description": "Window end (optional)",
				},
				"top": map[string]interface{}{
					"type":        "integer",
					"description": "Size of the views leaderboard (optional, defaults to 5)",
				},
			},
			"required": []string{"creator_id"},
		},
	}, mpServer.CreatorAnalytics)

	logger.Info("MCP server running via stdio")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
