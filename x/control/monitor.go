package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/colosseo-ops/acquirer/server/api"
	"github.com/colosseo-ops/acquirer/x/lifecycle"
	"github.com/colosseo-ops/acquirer/x/registry"
	"github.com/colosseo-ops/acquirer/x/store"
)

func validTicketType(t lifecycle.TicketType) bool {
	switch t {
	case lifecycle.TicketOrdinario, lifecycle.TicketFullExperienceArena,
		lifecycle.TicketFullExperienceUnderground, lifecycle.TicketForumPassSuper:
		return true
	default:
		return false
	}
}

// handleStartMonitoring opens a lifecycle for the target and streams
// availability events until the consumer drops, the target settles, or a
// stop request cancels the task.
func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["targetID"]

	var req StartMonitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if req.TargetDate == "" {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "target_date is required", nil)
		return
	}
	if !validTicketType(req.TicketType) {
		api.WriteError(w, r, http.StatusBadRequest, "bad_request", "unknown ticket_type", nil)
		return
	}

	now := time.Now().UTC()
	initial := lifecycle.Monitoring{
		StartedAt:  now,
		LastCheck:  now,
		TargetDate: req.TargetDate,
		TicketType: req.TicketType,
	}
	if err := s.registry.Insert(r.Context(), targetID, initial); err != nil {
		s.log.Error().Err(err).Str("target_id", targetID).Msg("lifecycle insert failed")
		api.WriteError(w, r, http.StatusServiceUnavailable, "store_unavailable", "coordination store unavailable", nil)
		return
	}

	// The task outlives this request only in the sense that its cancel
	// handle is reachable via StopMonitoring; a dropped consumer ends it.
	taskCtx, cancel := context.WithCancel(context.Background())
	s.registry.BindCancel(targetID, cancel)

	events := make(chan AvailabilityEvent, s.cfg.StreamBuffer)
	go s.runMonitor(taskCtx, targetID, req.TargetDate, req.TicketType, events)

	go func() {
		select {
		case <-r.Context().Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	s.log.Info().
		Str("target_id", targetID).
		Str("target_date", req.TargetDate).
		Str("ticket_type", string(req.TicketType)).
		Msg("monitoring started")

	streamsActive.Inc()
	defer streamsActive.Dec()
	streamNDJSON(w, taskCtx.Done(), events, cancel)
}

// runMonitor is the per-target polling task. It owns the events channel
// and closes it on exit.
func (s *Server) runMonitor(ctx context.Context, targetID, targetDate string, ticketType lifecycle.TicketType, events chan<- AvailabilityEvent) {
	defer close(events)

	log := s.log.With().Str("target_id", targetID).Logger()
	stats := s.statsFor(targetID)

	interval := time.Duration(s.pollInterval.Load())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if cur := time.Duration(s.pollInterval.Load()); cur != interval {
			interval = cur
			ticker.Reset(interval)
		}

		now := time.Now().UTC()

		current, err := s.registry.Get(ctx, targetID)
		if errors.Is(err, registry.ErrNotFound) {
			return
		}
		if err != nil {
			// Store fault: the lifecycle may still be live, keep polling.
			log.Warn().Err(err).Msg("state lookup failed")
			continue
		}
		if lifecycle.IsSettled(current) {
			return
		}
		if lifecycle.IsTimedOut(current, now) {
			failed := lifecycle.Failed{
				FailedAt:      now,
				Reason:        lifecycle.ReasonTimeout,
				RetryEligible: lifecycle.DefaultRetryEligible(lifecycle.ReasonTimeout),
			}
			if _, terr := s.registry.Update(ctx, targetID, failed); terr != nil {
				transitionsTotal.WithLabelValues("rejected").Inc()
			} else {
				transitionsTotal.WithLabelValues("timeout").Inc()
				log.Warn().Str("phase", string(current.Phase())).Msg("phase deadline exceeded")
			}
			return
		}

		if current.Phase() != lifecycle.PhaseMonitoring {
			// The acquisition path owns the lifecycle now; keep the stream
			// alive with phase heartbeats only.
			hb := AvailabilityEvent{
				TargetID:    targetID,
				TimestampMS: now.UnixMilli(),
				Status:      AvailabilityUnknown,
				Phase:       current.Phase(),
			}
			select {
			case events <- hb:
			case <-ctx.Done():
				return
			}
			continue
		}

		pollAttempts.WithLabelValues(targetID).Inc()
		res, checkErr := s.detector.Check(ctx, targetID, targetDate, ticketType)
		latencyMS := res.Latency.Milliseconds()

		stats.checks.Add(1)
		stats.lastCheckMS.Store(now.UnixMilli())
		s.checksTotal.Add(1)
		s.latencySumMS.Add(latencyMS)

		if res.Proxy != "" {
			stats.setProxy(res.Proxy)
			if perr := s.store.UpdateProxyHealth(ctx, res.Proxy, checkErr == nil, latencyMS); perr != nil {
				log.Warn().Err(perr).Str("proxy", res.Proxy).Msg("proxy health update failed")
			}
		}

		if checkErr != nil {
			s.errorsTotal.Add(1)
			log.Warn().Err(checkErr).Msg("availability check failed")
			_ = s.store.RecordMetric(ctx, "check_errors", 1, map[string]string{"target": targetID})
			continue
		}

		if res.SessionBlob != "" {
			if serr := s.store.SaveSession(ctx, "detector:"+targetID, res.SessionBlob, store.StateTTL); serr != nil {
				log.Warn().Err(serr).Msg("session persist failed")
			}
		}

		_, _ = s.registry.Refresh(ctx, targetID, func(cur lifecycle.State) lifecycle.State {
			m, ok := cur.(lifecycle.Monitoring)
			if !ok {
				return cur
			}
			m.LastCheck = now
			m.CheckCount++
			return m
		})

		_ = s.store.RecordMetric(ctx, "check_latency_ms", float64(latencyMS), map[string]string{"target": targetID})

		ev := AvailabilityEvent{
			TargetID:    targetID,
			TimestampMS: now.UnixMilli(),
			Status:      res.Status,
			Confidence:  res.Confidence,
			Signals:     res.Signals,
			Phase:       lifecycle.PhaseMonitoring,
			Proxy:       res.Proxy,
			LatencyMS:   latencyMS,
		}

		if res.Status == AvailabilityAvailable && res.Confidence >= s.cfg.DetectionThreshold {
			detected := lifecycle.Detected{
				DetectedAt: now,
				Confidence: res.Confidence,
				Signals:    res.Signals,
				TargetDate: targetDate,
				TicketType: ticketType,
			}
			if _, terr := s.registry.Update(ctx, targetID, detected); terr != nil {
				transitionsTotal.WithLabelValues("rejected").Inc()
			} else {
				stats.detections.Add(1)
				ev.Phase = lifecycle.PhaseDetected
				availabilityEvents.WithLabelValues(targetID, string(res.Status)).Inc()
				transitionsTotal.WithLabelValues("accepted").Inc()

				alert := store.Alert{
					Level:      store.AlertCritical,
					Timestamp:  now,
					Target:     targetID,
					Status:     string(res.Status),
					Confidence: res.Confidence,
					Metadata: map[string]any{
						"target_date": targetDate,
						"ticket_type": string(ticketType),
					},
				}
				if aerr := s.store.QueueAlert(ctx, alert); aerr != nil {
					log.Warn().Err(aerr).Msg("alert enqueue failed")
				}

				log.Info().
					Float64("confidence", res.Confidence).
					Int("signals", len(res.Signals)).
					Msg("availability detected")
			}
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// handleStopMonitoring cancels the target's task and records a retryable
// Stopped failure in the durable snapshot so peers see the outcome.
func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["targetID"]

	if _, err := s.registry.Get(r.Context(), targetID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			api.WriteError(w, r, http.StatusNotFound, "not_found", "target is not monitored", nil)
			return
		}
		s.log.Error().Err(err).Str("target_id", targetID).Msg("state lookup failed")
		api.WriteError(w, r, http.StatusInternalServerError, "store_error", "coordination store unavailable", nil)
		return
	}

	s.registry.Cancel(targetID)
	s.registry.Remove(targetID)

	stopped := lifecycle.Failed{
		FailedAt:      time.Now().UTC(),
		Reason:        lifecycle.ReasonStopped,
		RetryEligible: lifecycle.DefaultRetryEligible(lifecycle.ReasonStopped),
	}
	if err := s.store.SaveState(r.Context(), targetID, stopped); err != nil {
		s.log.Warn().Err(err).Str("target_id", targetID).Msg("stop snapshot persist failed")
	}

	s.log.Info().Str("target_id", targetID).Msg("monitoring stopped")
	api.WriteJSON(w, http.StatusOK, StopResponse{Success: true, Message: "monitoring stopped"})
}

// handleGetStatus summarizes tracked targets; ?target_id= narrows to one.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if only := r.URL.Query().Get("target_id"); only != "" {
		ids = []string{only}
	} else {
		ids = s.registry.Targets()
		sort.Strings(ids)
	}

	targets := make([]TargetStatus, 0, len(ids))
	for _, id := range ids {
		state, err := s.registry.Get(r.Context(), id)
		if errors.Is(err, registry.ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("target_id", id).Msg("state lookup failed")
			api.WriteError(w, r, http.StatusInternalServerError, "store_error", "coordination store unavailable", nil)
			return
		}
		stats := s.statsFor(id)

		ts := TargetStatus{
			TargetID:        id,
			Phase:           state.Phase(),
			ChecksTotal:     stats.checks.Load(),
			DetectionsTotal: stats.detections.Load(),
			LastCheckMS:     stats.lastCheckMS.Load(),
			CurrentProxy:    stats.currentProxy(),
			HealthScore:     1.0,
		}
		if ts.CurrentProxy != "" {
			if ph, herr := s.store.GetProxyHealth(r.Context(), ts.CurrentProxy); herr == nil {
				ts.HealthScore = ph.HealthScore
			}
		}
		targets = append(targets, ts)
	}

	api.WriteJSON(w, http.StatusOK, StatusResponse{Targets: targets})
}

// handleStreamMetrics streams aggregate snapshots at the configured
// cadence until the consumer drops.
func (s *Server) handleStreamMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan MetricsSnapshot, s.cfg.StreamBuffer)
	go s.runMetricsFeed(ctx, events)

	streamsActive.Inc()
	defer streamsActive.Dec()
	streamNDJSON(w, ctx.Done(), events, cancel)
}

func (s *Server) runMetricsFeed(ctx context.Context, out chan<- MetricsSnapshot) {
	defer close(out)

	ticker := time.NewTicker(s.cfg.MetricsCadence)
	defer ticker.Stop()

	prevChecks := s.checksTotal.Load()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checks := s.checksTotal.Load()
		errors := s.errorsTotal.Load()
		latencySum := s.latencySumMS.Load()

		snap := MetricsSnapshot{
			TimestampMS:       time.Now().UnixMilli(),
			RequestsPerSecond: float64(checks-prevChecks) / s.cfg.MetricsCadence.Seconds(),
			ProxyHealth:       make(map[string]float64),
		}
		if checks > 0 {
			snap.AvgLatencyMS = float64(latencySum) / float64(checks)
			snap.ErrorRate = float64(errors) / float64(checks)
		}
		prevChecks = checks

		for _, proxy := range s.activeProxies() {
			if ph, err := s.store.GetProxyHealth(ctx, proxy); err == nil {
				snap.ProxyHealth[proxy] = ph.HealthScore
			}
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) activeProxies() []string {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	seen := make(map[string]struct{})
	var proxies []string
	for _, st := range s.stats {
		if p := st.currentProxy(); p != "" {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				proxies = append(proxies, p)
			}
		}
	}
	sort.Strings(proxies)
	return proxies
}
