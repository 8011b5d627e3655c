package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/logger"
	"github.com/mkaplan/postloom/internal/prompts"
	"github.com/mkaplan/postloom/internal/repository"
	"github.com/mkaplan/postloom/internal/storage"
	"gorm.io/gorm"
)

// CandidateGenerator is the slice of the LLM service the pipeline needs.
// Kept small so tests can substitute a deterministic fake.
type CandidateGenerator interface {
	GenerateCandidates(ctx context.Context, brief *prompts.Brief, n int) ([]domain.Candidate, error)
	JudgeCandidate(ctx context.Context, channelName string, c *domain.Candidate) (*domain.Score, error)
}

// GenerationSettings holds the pipeline knobs.
type GenerationSettings struct {
	CandidatesPerSlot int
	MinQualityScore   float64
	PersonaSpacing    time.Duration
	FewShotLimit      int
}

// GenerationService runs the planning and generation pipeline behind the
// generate_week, generate_item, publish_item, and ingest_metrics jobs.
type GenerationService struct {
	planning  *repository.PlanningRepository
	calendar  *repository.CalendarRepository
	assets    *repository.AssetRepository
	runs      *repository.RunRepository
	audit     *repository.AuditRepository
	generator CandidateGenerator
	examples  *ExampleService
	store     storage.ObjectStorage
	settings  GenerationSettings
}

// NewGenerationService creates the generation pipeline.
// Parameters:
//   - planning, calendar, assets, runs, audit: repositories.
//   - generator: candidate generation and judging backend.
//   - examples: few-shot retrieval service.
//   - store: optional object storage for transcript archival; may be nil.
//   - settings: pipeline knobs.
// Returns:
//   - *GenerationService: initialized pipeline.
func NewGenerationService(
	planning *repository.PlanningRepository,
	calendar *repository.CalendarRepository,
	assets *repository.AssetRepository,
	runs *repository.RunRepository,
	audit *repository.AuditRepository,
	generator CandidateGenerator,
	examples *ExampleService,
	store storage.ObjectStorage,
	settings GenerationSettings,
) *GenerationService {
	if settings.CandidatesPerSlot <= 0 {
		settings.CandidatesPerSlot = 3
	}
	if settings.PersonaSpacing <= 0 {
		settings.PersonaSpacing = 24 * time.Hour
	}
	if settings.FewShotLimit <= 0 {
		settings.FewShotLimit = 3
	}
	return &GenerationService{
		planning:  planning,
		calendar:  calendar,
		assets:    assets,
		runs:      runs,
		audit:     audit,
		generator: generator,
		examples:  examples,
		store:     store,
		settings:  settings,
	}
}

// slotResult records one slot's outcome for the run transcript.
type slotResult struct {
	SlotIndex   int       `json:"slot_index"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ChannelID   string    `json:"channel_id"`
	PersonaID   string    `json:"persona_id"`
	Topic       string    `json:"topic"`
	ItemID      string    `json:"item_id,omitempty"`
	AssetID     string    `json:"asset_id,omitempty"`
	Overall     float64   `json:"overall,omitempty"`
	Candidates  int       `json:"candidates"`
	Error       string    `json:"error,omitempty"`
}

// GenerateWeek plans and generates a full week of content. Per-slot
// failures are counted but never abort sibling slots. The run succeeds when
// at least one slot produced an item. On any failure the run is left open:
// the worker retries the job against the same run, and only its final-
// failure decision (ErrConfig or exhausted attempts) closes the run as
// failed, via HandleFinalFailure. A run that is already terminal is never
// regenerated.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orgID: owning organization (audit attribution).
//   - projectID: owning project.
//   - payload: generate_week job payload.
// Returns:
//   - error: non-nil when this attempt failed; ErrConfig errors skip retry.
func (s *GenerationService) GenerateWeek(ctx context.Context, orgID, projectID string, payload *domain.GenerateWeekPayload) error {
	ctx = logger.SetRunID(ctx, payload.GenerationRunID)

	if err := s.claimRun(ctx, payload.GenerationRunID); err != nil {
		return err
	}

	weekStart, err := time.Parse("2006-01-02", payload.WeekStartDate)
	if err != nil {
		return fmt.Errorf("%w: bad week start date %q", ErrConfig, payload.WeekStartDate)
	}

	project, err := s.planning.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: project %s not found", ErrConfig, projectID)
		}
		return fmt.Errorf("load project: %w", err)
	}

	channels, err := s.planning.ActiveChannels(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	personas, err := s.planning.ActivePersonas(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	topics, err := s.planning.ActiveTopics(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	if len(channels) == 0 {
		return fmt.Errorf("%w: project has no active channels", ErrConfig)
	}
	if len(topics) == 0 {
		return fmt.Errorf("%w: project has no active topics", ErrConfig)
	}

	week, err := s.resolveWeek(ctx, projectID, payload)
	if err != nil {
		return err
	}

	postsPerWeek := payload.PostsPerWeek
	if postsPerWeek <= 0 {
		postsPerWeek = project.PostsPerWeek
	}

	slots := PlanSlots(weekStart, postsPerWeek)

	usage, err := s.calendar.CountItemsByChannel(ctx, week.ID)
	if err != nil {
		return fmt.Errorf("load weekly usage: %w", err)
	}

	slots, err = AssignChannels(slots, channels, domain.ParseRiskTolerance(project.RiskTolerance), usage)
	if err != nil {
		return err
	}
	slots, err = AssignPersonas(slots, personas, s.settings.PersonaSpacing)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("%w: no channel capacity left this week", ErrConfig)
	}

	channelByID := make(map[string]domain.Channel, len(channels))
	for _, ch := range channels {
		channelByID[ch.ID] = ch
	}
	personaByID := make(map[string]domain.Persona, len(personas))
	for _, p := range personas {
		personaByID[p.ID] = p
	}

	// Slots are generated and committed sequentially; a failure in one
	// never aborts its siblings.
	results := make([]slotResult, 0, len(slots))
	succeeded := 0
	for i, slot := range slots {
		topic := topics[i%len(topics)]
		slot.TopicID = topic.ID

		res := s.generateSlot(ctx, project, week, slot, channelByID[slot.ChannelID], personaByID[slot.PersonaID], topic)
		results = append(results, res)
		if res.Error == "" {
			succeeded++
		} else {
			logger.CtxWarn(ctx, "slot %d failed: %s", slot.Index, res.Error)
		}
	}

	s.archiveTranscript(ctx, project.ID, payload.GenerationRunID, results)

	if succeeded == 0 {
		return fmt.Errorf("all %d slots failed", len(slots))
	}

	if err := s.runs.MarkFinished(ctx, payload.GenerationRunID, domain.RunStatusSucceeded, ""); err != nil {
		return fmt.Errorf("mark run succeeded: %w", err)
	}
	s.recordAudit(ctx, orgID, project.ID, "generate_week", "calendar_week", week.ID,
		fmt.Sprintf(`{"slots":%d,"succeeded":%d}`, len(slots), succeeded))

	logger.With(logger.Fields{logger.FieldCount: succeeded}).
		Info(ctx, "week generation finished: %d/%d slots", succeeded, len(slots))
	return nil
}

// resolveWeek loads the payload's week or creates the row for the start date.
func (s *GenerationService) resolveWeek(ctx context.Context, projectID string, payload *domain.GenerateWeekPayload) (*domain.CalendarWeek, error) {
	if payload.CalendarWeekID != "" {
		week, err := s.calendar.GetWeekByID(ctx, payload.CalendarWeekID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: calendar week %s not found", ErrConfig, payload.CalendarWeekID)
			}
			return nil, fmt.Errorf("load calendar week: %w", err)
		}
		return week, nil
	}
	week, err := s.calendar.GetOrCreateWeek(ctx, projectID, payload.WeekStartDate)
	if err != nil {
		return nil, fmt.Errorf("resolve calendar week: %w", err)
	}
	return week, nil
}

// generateSlot runs the candidate/score/select/persist sequence for one slot.
func (s *GenerationService) generateSlot(ctx context.Context, project *domain.Project, week *domain.CalendarWeek, slot domain.Slot, channel domain.Channel, persona domain.Persona, topic domain.Topic) slotResult {
	res := slotResult{
		SlotIndex:   slot.Index,
		ScheduledAt: slot.ScheduledAt,
		ChannelID:   slot.ChannelID,
		PersonaID:   slot.PersonaID,
		Topic:       topic.Name,
	}

	winner, sel, n, err := s.draftAndSelect(ctx, project, channel, persona, topic)
	res.Candidates = n
	if err != nil {
		res.Error = err.Error()
		return res
	}

	item := domain.CalendarItem{
		ID:          uuid.New().String(),
		WeekID:      week.ID,
		ProjectID:   project.ID,
		ChannelID:   slot.ChannelID,
		PersonaID:   slot.PersonaID,
		TopicID:     topic.ID,
		ScheduledAt: slot.ScheduledAt,
		Status:      domain.ItemStatusScheduled,
	}
	if err := s.calendar.CreateItems(ctx, []domain.CalendarItem{item}); err != nil {
		res.Error = fmt.Sprintf("persist calendar item: %v", err)
		return res
	}

	asset := &domain.ContentAsset{
		CalendarItemID:  item.ID,
		ProjectID:       project.ID,
		Title:           winner.Title,
		Body:            winner.Body,
		Topic:           winner.Topic,
		TargetQueries:   winner.TargetQueries,
		RiskFlags:       winner.RiskFlags,
		Disclosure:      winner.Disclosure,
		FollowUpComment: winner.FollowUpComment,
	}
	asset, err = s.assets.CreateVersion(ctx, asset)
	if err != nil {
		res.Error = fmt.Sprintf("persist asset: %v", err)
		return res
	}
	if _, err := s.assets.AttachScore(ctx, asset.ID, sel.Score); err != nil {
		res.Error = fmt.Sprintf("attach score: %v", err)
		return res
	}

	// Best-effort side write; never fails the slot.
	if err := s.planning.IncrementTopicUse(ctx, topic.ID); err != nil {
		logger.CtxWarn(ctx, "topic use-count bump failed: %v", err)
	}

	res.ItemID = item.ID
	res.AssetID = asset.ID
	res.Overall = sel.Overall
	return res
}

// GenerateItem regenerates content for a single calendar item, producing a
// new asset version on top of the existing lineage. Failure semantics match
// GenerateWeek: the run stays open across retries and is closed by
// HandleFinalFailure when the worker gives up.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orgID: owning organization (audit attribution).
//   - payload: generate_item job payload.
// Returns:
//   - error: non-nil when this attempt failed; ErrConfig errors skip retry.
func (s *GenerationService) GenerateItem(ctx context.Context, orgID string, payload *domain.GenerateItemPayload) error {
	ctx = logger.SetRunID(ctx, payload.GenerationRunID)

	if err := s.claimRun(ctx, payload.GenerationRunID); err != nil {
		return err
	}

	item, err := s.calendar.GetItemByID(ctx, payload.CalendarItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: calendar item %s not found", ErrConfig, payload.CalendarItemID)
		}
		return fmt.Errorf("load calendar item: %w", err)
	}

	project, err := s.planning.GetProject(ctx, item.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	channel, err := s.planning.GetChannel(ctx, item.ChannelID)
	if err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	persona, err := s.planning.GetPersona(ctx, item.PersonaID)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}

	topic := domain.Topic{Name: "general"}
	if item.TopicID != "" {
		if t, err := s.planning.GetTopic(ctx, item.TopicID); err == nil {
			topic = *t
		}
	}

	res := s.regenerateExisting(ctx, project, item, *channel, *persona, topic)
	s.archiveTranscript(ctx, project.ID, payload.GenerationRunID, []slotResult{res})

	if res.Error != "" {
		return errors.New(res.Error)
	}
	if err := s.runs.MarkFinished(ctx, payload.GenerationRunID, domain.RunStatusSucceeded, ""); err != nil {
		return fmt.Errorf("mark run succeeded: %w", err)
	}
	s.recordAudit(ctx, orgID, project.ID, "generate_item", "calendar_item", item.ID, "")
	return nil
}

// regenerateExisting is generateSlot for an item that already exists: the
// winner lands as a new asset version instead of a new calendar item.
func (s *GenerationService) regenerateExisting(ctx context.Context, project *domain.Project, item *domain.CalendarItem, channel domain.Channel, persona domain.Persona, topic domain.Topic) slotResult {
	res := slotResult{
		ScheduledAt: item.ScheduledAt,
		ChannelID:   item.ChannelID,
		PersonaID:   item.PersonaID,
		Topic:       topic.Name,
		ItemID:      item.ID,
	}

	winner, sel, n, err := s.draftAndSelect(ctx, project, channel, persona, topic)
	res.Candidates = n
	if err != nil {
		res.Error = err.Error()
		return res
	}

	asset := &domain.ContentAsset{
		CalendarItemID:  item.ID,
		ProjectID:       project.ID,
		Title:           winner.Title,
		Body:            winner.Body,
		Topic:           winner.Topic,
		TargetQueries:   winner.TargetQueries,
		RiskFlags:       winner.RiskFlags,
		Disclosure:      winner.Disclosure,
		FollowUpComment: winner.FollowUpComment,
	}
	asset, err = s.assets.CreateVersion(ctx, asset)
	if err != nil {
		res.Error = fmt.Sprintf("persist asset: %v", err)
		return res
	}
	if _, err := s.assets.AttachScore(ctx, asset.ID, sel.Score); err != nil {
		res.Error = fmt.Sprintf("attach score: %v", err)
		return res
	}

	res.AssetID = asset.ID
	res.Overall = sel.Overall
	return res
}

// draftAndSelect runs the generate/score/select sequence for one brief and
// returns the winning candidate with its score and the candidate count.
func (s *GenerationService) draftAndSelect(ctx context.Context, project *domain.Project, channel domain.Channel, persona domain.Persona, topic domain.Topic) (*domain.Candidate, *Selection, int, error) {
	examples, err := s.examples.TopExamples(ctx, project.ID, topic.Name, s.settings.FewShotLimit)
	if err != nil {
		// Few-shot is enrichment; generate without it.
		logger.CtxWarn(ctx, "few-shot retrieval failed: %v", err)
	}

	brief := &prompts.Brief{
		BrandVoice:   project.BrandVoice,
		PersonaName:  persona.Name,
		PersonaVoice: persona.Voice,
		PersonaBio:   persona.Bio,
		ChannelName:  channel.Name,
		ChannelRisk:  riskName(channel.RiskLevel),
		Topic:        topic.Name,
		TopicAngle:   topic.Angle,
		Keywords:     topic.Keywords,
		Examples:     examples,
	}

	cands, err := s.generator.GenerateCandidates(ctx, brief, s.settings.CandidatesPerSlot)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("generate candidates: %w", err)
	}

	heuristics := make([]float64, len(cands))
	judged := make([]*domain.Score, len(cands))
	for i := range cands {
		heuristics[i] = HeuristicScore(&cands[i])
		score, err := s.generator.JudgeCandidate(ctx, channel.Name, &cands[i])
		if err != nil {
			// Judge is best effort; the heuristic carries the slot.
			logger.CtxWarn(ctx, "judge failed for candidate %d: %v", i, err)
			continue
		}
		judged[i] = score
	}

	minQuality := s.settings.MinQualityScore
	if project.MinQualityScore > 0 {
		minQuality = project.MinQualityScore
	}
	sel, err := SelectCandidate(cands, heuristics, judged, minQuality)
	if err != nil {
		return nil, nil, len(cands), err
	}
	return &cands[sel.Index], sel, len(cands), nil
}

// PublishItem marks a scheduled calendar item published. The job's run_at
// carried the scheduled time, so by the time this executes the item is due.
// A replayed job finds the item already published and is a no-op.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orgID: owning organization (audit attribution).
//   - payload: publish_item job payload.
// Returns:
//   - error: non-nil if the transition fails.
func (s *GenerationService) PublishItem(ctx context.Context, orgID string, payload *domain.PublishItemPayload) error {
	item, err := s.calendar.GetItemByID(ctx, payload.CalendarItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: calendar item %s not found", ErrConfig, payload.CalendarItemID)
		}
		return fmt.Errorf("load calendar item: %w", err)
	}

	transitioned, err := s.calendar.MarkItemPublished(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("publish item %s: %w", item.ID, err)
	}
	if !transitioned {
		logger.CtxInfo(ctx, "item %s already published or not scheduled, skipping", item.ID)
		return nil
	}

	s.recordAudit(ctx, orgID, item.ProjectID, "publish_item", "calendar_item", item.ID,
		fmt.Sprintf(`{"content_asset_id":%q}`, payload.ContentAssetID))
	return nil
}

// IngestMetrics applies an engagement snapshot to published assets and
// refreshes the example index for assets that qualify as few-shot material.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - payload: ingest_metrics job payload.
// Returns:
//   - error: non-nil if any engagement write fails.
func (s *GenerationService) IngestMetrics(ctx context.Context, payload *domain.IngestMetricsPayload) error {
	var failed int
	for assetID, score := range payload.Engagement {
		if err := s.assets.UpdateEngagement(ctx, assetID, score); err != nil {
			logger.CtxError(ctx, "engagement update for %s failed: %v", assetID, err)
			failed++
			continue
		}

		// Re-index is best effort; ranking catches up next snapshot.
		asset, err := s.assets.GetByID(ctx, assetID)
		if err != nil {
			continue
		}
		if err := s.examples.IndexAsset(ctx, asset); err != nil {
			logger.CtxWarn(ctx, "example index refresh for %s failed: %v", assetID, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d engagement updates failed", failed, len(payload.Engagement))
	}
	return nil
}

// Readiness reports how close a project's reviewed corpus is to being
// useful as training/few-shot material.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - *repository.ReadinessStats: aggregates over rated assets and scores.
//   - error: non-nil if the query fails.
func (s *GenerationService) Readiness(ctx context.Context, projectID string) (*repository.ReadinessStats, error) {
	return s.assets.Readiness(ctx, projectID)
}

// claimRun moves the run to running, rejecting runs that are already
// terminal. A job replayed after its run finished must not generate
// content against a closed run.
func (s *GenerationService) claimRun(ctx context.Context, runID string) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: generation run %s not found", ErrConfig, runID)
		}
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status == domain.RunStatusSucceeded || run.Status == domain.RunStatusFailed {
		return fmt.Errorf("%w: run %s is already %s", ErrConfig, runID, run.Status)
	}
	if err := s.runs.MarkRunning(ctx, runID); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

// HandleFinalFailure closes out the generation run behind a job the worker
// has terminally failed. Retryable errors leave the run open so a later
// attempt can still finish it; the run's user-visible failure is written
// here, once the retry decision is final.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: the terminally failed job.
//   - cause: the error that exhausted the job.
func (s *GenerationService) HandleFinalFailure(ctx context.Context, job *domain.Job, cause error) {
	payload, err := domain.DecodeJobPayload(job.Type, job.Payload)
	if err != nil {
		return
	}

	var runID string
	switch p := payload.(type) {
	case *domain.GenerateWeekPayload:
		runID = p.GenerationRunID
	case *domain.GenerateItemPayload:
		runID = p.GenerationRunID
	default:
		// publish_item and ingest_metrics carry no run.
		return
	}

	ctx = logger.SetRunID(ctx, runID)
	if err := s.runs.MarkFinished(ctx, runID, domain.RunStatusFailed, cause.Error()); err != nil {
		logger.CtxError(ctx, "mark run %s failed: %v", runID, err)
	}
}

// archiveTranscript ships the raw slot results to object storage.
// Fire-and-forget: failures are logged, never propagated.
func (s *GenerationService) archiveTranscript(ctx context.Context, projectID, runID string, results []slotResult) {
	if s.store == nil {
		return
	}
	transcript := struct {
		RunID      string       `json:"run_id"`
		ProjectID  string       `json:"project_id"`
		ArchivedAt time.Time    `json:"archived_at"`
		Slots      []slotResult `json:"slots"`
	}{
		RunID:      runID,
		ProjectID:  projectID,
		ArchivedAt: time.Now().UTC(),
		Slots:      results,
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		logger.CtxWarn(ctx, "transcript marshal failed: %v", err)
		return
	}
	key := storage.TranscriptKey(projectID, runID, "run", transcript.ArchivedAt)
	if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		logger.CtxWarn(ctx, "transcript upload failed: %v", err)
	}
}

// recordAudit writes one audit entry. Fire-and-forget.
func (s *GenerationService) recordAudit(ctx context.Context, orgID, projectID, action, entityType, entityID, diff string) {
	if s.audit == nil {
		return
	}
	entry := &domain.AuditLog{
		OrgID:      orgID,
		ProjectID:  projectID,
		ActorID:    "worker",
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Diff:       diff,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		logger.CtxWarn(ctx, "audit write failed: %v", err)
	}
}

func riskName(level domain.RiskLevel) string {
	switch level {
	case domain.RiskHigh:
		return "high"
	case domain.RiskMedium:
		return "medium"
	default:
		return "low"
	}
}
