package earning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"creatorpay/pkg/db/option"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/rediskey"
	"creatorpay/pkg/repository"
	"creatorpay/services/user"

	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	redis *goredis.Client

	settings *Settings
	balances *user.Balances

	earnings repository.Repository[Earning]
	users    repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Settings *Settings
	Redis    *goredis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		redis:    p.Redis,
		settings: p.Settings,
		balances: user.NewBalances(p.DB),

		earnings: repository.ProvideStore[Earning](p.DB),
		users:    repository.ProvideStore[user.User](p.DB),
	}
}

// RecordRequest is one monetizable event from the platform's ingest path.
type RecordRequest struct {
	CreatorID   string         `json:"creatorId" binding:"required"`
	ContentKind ContentKind    `json:"contentKind"`
	ContentID   string         `json:"contentId"`
	Metadata    map[string]any `json:"metadata"`
}

// RecordEvent appends an Earning for a counted source (views, ad events)
// and accrues the creator share onto the creator's balances in the same
// transaction.
func (s *Service) RecordEvent(ctx context.Context, source Source, req RecordRequest) (*Earning, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if !source.Valid() || source == SourceSubscription {
		return nil, errutil.BadRequest("unsupported earning source", nil)
	}
	if req.ContentID == "" {
		return nil, errutil.ValidationFailed("contentId is required", nil)
	}
	if !AllowedContentKind(source, req.ContentKind) {
		return nil, errutil.ValidationFailed("contentKind not allowed for this source", nil)
	}

	creator, err := s.users.FindOne(ctx, &user.User{ID: req.CreatorID})
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	rate, ok := settings.RateFor(source)
	if !ok {
		return nil, errutil.BadRequest("no rate configured for source", nil)
	}

	entry := &Earning{
		ID:          s.node.Generate().String(),
		CreatorID:   creator.ID,
		Source:      source,
		ContentKind: req.ContentKind,
		ContentID:   req.ContentID,
		Amount:      rate,
		PlatformCut: DefaultPlatformCut,
		OccurredAt:  time.Now(),
	}
	if req.Metadata != nil {
		metaBytes, _ := json.Marshal(req.Metadata)
		entry.Metadata = datatypes.JSON(metaBytes)
	}

	if err := s.append(ctx, entry); err != nil {
		zap.L().Error("failed to record earning",
			zap.String("creator_id", creator.ID),
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return nil, err
	}

	return entry, nil
}

// RecordSubscription appends a subscription Earning for a completed
// subscription payment. The platform cut is derived from the sharing rate
// at record time.
func (s *Service) RecordSubscription(ctx context.Context, creatorID string, amount float64, paymentID string) (*Earning, error) {
	if amount <= 0 {
		return nil, errutil.BadRequest("amount must be greater than zero", nil)
	}

	creator, err := s.users.FindOne(ctx, &user.User{ID: creatorID})
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	entry := &Earning{
		ID:          s.node.Generate().String(),
		CreatorID:   creator.ID,
		Source:      SourceSubscription,
		Amount:      amount,
		PlatformCut: 100 - settings.SubscriptionSharingRate,
		Metadata:    datatypes.JSON([]byte(`{"paymentId":"` + paymentID + `"}`)),
		OccurredAt:  time.Now(),
	}

	if err := s.append(ctx, entry); err != nil {
		zap.L().Error("failed to record subscription earning",
			zap.String("creator_id", creatorID),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, err
	}

	return entry, nil
}

func (s *Service) append(ctx context.Context, entry *Earning) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.earnings.WithTrx(tx).Create(ctx, entry); err != nil {
			return err
		}
		return s.balances.WithTrx(tx).Accrue(ctx, entry.CreatorID, entry.CreatorShare())
	})
}

// Window is a [Start, End) reporting interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolveWindow parses optional RFC3339 date bounds, defaulting to the last
// 30 days.
func ResolveWindow(startStr, endStr string) (Window, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if endStr != "" {
		parsed, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return Window{}, errutil.ValidationFailed("invalid end date", err)
		}
		end = parsed
	}
	if startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return Window{}, errutil.ValidationFailed("invalid start date", err)
		}
		start = parsed
	}
	if !start.Before(end) {
		return Window{}, errutil.ValidationFailed("start must be before end", nil)
	}
	return Window{Start: start, End: end}, nil
}

// ShareBreakdown splits a total into the platform and creator portions,
// computed per record from its snapshotted cut.
type ShareBreakdown struct {
	Total         float64 `json:"total"`
	CreatorShare  float64 `json:"creatorShare"`
	PlatformShare float64 `json:"platformShare"`
	Count         int64   `json:"count"`
}

func (b *ShareBreakdown) add(e *Earning) {
	b.Total += e.Amount
	b.CreatorShare += e.CreatorShare()
	b.PlatformShare += e.PlatformShare()
	b.Count++
}

type DailyPoint struct {
	Date string `json:"date"`
	ShareBreakdown
}

type ContentRank struct {
	ContentKind ContentKind `json:"contentKind"`
	ContentID   string      `json:"contentId"`
	Total       float64     `json:"total"`
}

type CreatorRank struct {
	CreatorID   string  `json:"creatorId"`
	DisplayName string  `json:"displayName"`
	Total       float64 `json:"total"`
}

// Summary is the dashboard aggregation over a window.
type Summary struct {
	Window      Window                    `json:"window"`
	Totals      ShareBreakdown            `json:"totals"`
	BySource    map[Source]ShareBreakdown `json:"bySource"`
	Daily       []DailyPoint              `json:"daily"`
	TopContent  []ContentRank             `json:"topContent"`
	TopCreators []CreatorRank             `json:"topCreators,omitempty"`
}

// CreatorSummary is a creator's own dashboard view.
type CreatorSummary struct {
	Summary
	TotalEarnings    float64     `json:"totalEarnings"`
	PendingPayout    float64     `json:"pendingPayout"`
	IsMonetized      bool        `json:"isMonetized"`
	Eligibility      Eligibility `json:"eligibility"`
	LastPayoutAmount float64     `json:"lastPayoutAmount"`
	LastPayoutDate   *time.Time  `json:"lastPayoutDate,omitempty"`
}

const topN = 10

// AdminSummary aggregates the whole ledger over the window.
func (s *Service) AdminSummary(ctx context.Context, window Window) (*Summary, error) {
	entries, err := s.windowEntries(ctx, "", window)
	if err != nil {
		return nil, err
	}

	summary := s.aggregate(window, entries)
	summary.TopCreators = s.rankCreators(ctx, entries)
	return summary, nil
}

// summaryCacheTTL is kept short; the summary trails the ledger by at most
// this long.
const summaryCacheTTL = time.Minute

func creatorSummaryKey(creatorID string, window Window) string {
	return rediskey.NamespaceKey(
		rediskey.BuildCreatorSummaryKey(creatorID),
		fmt.Sprintf("%d:%d", window.Start.Unix(), window.End.Unix()),
	)
}

// ForCreator aggregates one creator's records and attaches balance and
// eligibility state.
func (s *Service) ForCreator(ctx context.Context, creatorID string, window Window) (*CreatorSummary, error) {
	creator, err := s.users.FindOne(ctx, &user.User{ID: creatorID})
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}

	key := creatorSummaryKey(creatorID, window)
	if s.redis != nil {
		if raw, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var cached CreatorSummary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	entries, err := s.windowEntries(ctx, creatorID, window)
	if err != nil {
		return nil, err
	}

	summary := &CreatorSummary{
		Summary:          *s.aggregate(window, entries),
		TotalEarnings:    creator.TotalEarnings,
		PendingPayout:    creator.PendingPayout,
		IsMonetized:      creator.IsMonetized,
		Eligibility:      Evaluate(creator),
		LastPayoutAmount: creator.LastPayoutAmount,
		LastPayoutDate:   creator.LastPayoutDate,
	}

	if s.redis != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.redis.Set(ctx, key, raw, summaryCacheTTL).Err(); err != nil {
				zap.L().Warn("failed to cache creator summary", zap.Error(err))
			}
		}
	}

	return summary, nil
}

// PlatformRevenue sums the platform's share over a window. Used by the
// withdrawal service to bound admin payouts.
func (s *Service) PlatformRevenue(ctx context.Context, window Window) (float64, error) {
	entries, err := s.windowEntries(ctx, "", window)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, e := range entries {
		total += e.PlatformShare()
	}
	return total, nil
}

func (s *Service) windowEntries(ctx context.Context, creatorID string, window Window) ([]*Earning, error) {
	query := &Earning{}
	if creatorID != "" {
		query.CreatorID = creatorID
	}

	return s.earnings.Find(ctx, query,
		option.ApplyOperator(option.Condition{Field: "occurred_at", Operator: option.GTE, Value: window.Start}),
		option.ApplyOperator(option.Condition{Field: "occurred_at", Operator: option.LT, Value: window.End}),
		option.WithSortBy(option.QuerySortBy{SortBy: "occurred_at", OrderBy: "asc", Allow: map[string]bool{"occurred_at": true}}),
	)
}

func (s *Service) aggregate(window Window, entries []*Earning) *Summary {
	summary := &Summary{
		Window:   window,
		BySource: make(map[Source]ShareBreakdown),
	}

	daily := make(map[string]*DailyPoint)
	content := make(map[ContentRank]float64)

	for _, e := range entries {
		summary.Totals.add(e)

		bySource := summary.BySource[e.Source]
		bySource.add(e)
		summary.BySource[e.Source] = bySource

		day := e.OccurredAt.Format("2006-01-02")
		point, ok := daily[day]
		if !ok {
			point = &DailyPoint{Date: day}
			daily[day] = point
		}
		point.add(e)

		if e.ContentID != "" {
			key := ContentRank{ContentKind: e.ContentKind, ContentID: e.ContentID}
			content[key] += e.Amount
		}
	}

	summary.Daily = make([]DailyPoint, 0, len(daily))
	for _, point := range daily {
		summary.Daily = append(summary.Daily, *point)
	}
	sort.Slice(summary.Daily, func(i, j int) bool {
		return summary.Daily[i].Date < summary.Daily[j].Date
	})

	summary.TopContent = make([]ContentRank, 0, len(content))
	for key, total := range content {
		key.Total = total
		summary.TopContent = append(summary.TopContent, key)
	}
	sort.Slice(summary.TopContent, func(i, j int) bool {
		return summary.TopContent[i].Total > summary.TopContent[j].Total
	})
	if len(summary.TopContent) > topN {
		summary.TopContent = summary.TopContent[:topN]
	}

	return summary
}

// rankCreators orders creators by windowed total and resolves display names
// with a lookup per result rather than a join.
func (s *Service) rankCreators(ctx context.Context, entries []*Earning) []CreatorRank {
	totals := make(map[string]float64)
	for _, e := range entries {
		totals[e.CreatorID] += e.Amount
	}

	ranks := make([]CreatorRank, 0, len(totals))
	for creatorID, total := range totals {
		ranks = append(ranks, CreatorRank{CreatorID: creatorID, Total: total})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Total != ranks[j].Total {
			return ranks[i].Total > ranks[j].Total
		}
		return ranks[i].CreatorID < ranks[j].CreatorID
	})
	if len(ranks) > topN {
		ranks = ranks[:topN]
	}

	for i := range ranks {
		creator, err := s.users.FindOne(ctx, &user.User{ID: ranks[i].CreatorID})
		if err != nil || creator == nil {
			continue
		}
		ranks[i].DisplayName = creator.DisplayName
	}

	return ranks
}
