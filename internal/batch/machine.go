// Package batch runs batch operations: it turns the progress stream of a
// convert, vectorize, delete or upload request into surface updates, toasts
// and a final outcome.
package batch

import (
	"fmt"
	"strings"

	"github.com/rescale/docbatch/internal/constants"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/stream"
)

// Phase checkpoints recorded in the ledger when an item enters a phase.
const (
	checkpointQueued              = 0
	checkpointProcessing          = 5
	checkpointStart               = 10
	checkpointChecking            = 15
	checkpointDeleteEmbeddings    = 20
	checkpointCleanupStart        = 25
	checkpointCleanupProgress     = 30
	checkpointCleanupComplete     = 35
	checkpointAutoConvertStart    = 40
	checkpointAutoConvertProgress = 45
	checkpointAutoConvertComplete = 50
	checkpointVectorizeStart      = 55
)

type phaseStep struct {
	checkpoint int
	detail     string
	state      ItemState
}

var phaseSteps = map[stream.EventType]phaseStep{
	stream.TypeFileQueued:               {checkpointQueued, "queued", ItemPending},
	stream.TypeFileProcessing:           {checkpointProcessing, "processing", ItemActive},
	stream.TypeFileStart:                {checkpointStart, "starting", ItemActive},
	stream.TypeFileUploading:            {checkpointStart, "uploading", ItemActive},
	stream.TypeFileChecking:             {checkpointChecking, "checking", ItemActive},
	stream.TypeDeleteExistingEmbeddings: {checkpointDeleteEmbeddings, "removing old embeddings", ItemActive},
	stream.TypeCleanupStart:             {checkpointCleanupStart, "cleaning up", ItemActive},
	stream.TypeCleanupProgress:          {checkpointCleanupProgress, "cleaning up", ItemActive},
	stream.TypeCleanupComplete:          {checkpointCleanupComplete, "cleanup done", ItemActive},
	stream.TypeAutoConvertStart:         {checkpointAutoConvertStart, "converting to pages", ItemActive},
	stream.TypeAutoConvertProgress:      {checkpointAutoConvertProgress, "converting to pages", ItemActive},
	stream.TypeAutoConvertComplete:      {checkpointAutoConvertComplete, "pages ready", ItemActive},
	stream.TypeVectorizeStart:           {checkpointVectorizeStart, "vectorizing", ItemActive},
}

// Machine reduces stream events into RunState and returns the updates a
// surface needs to render each transition. It performs no I/O and is not
// safe for concurrent use.
type Machine struct {
	state  RunState
	ledger *Ledger
	names  []string
	log    *logging.Logger
}

// NewMachine returns an idle machine for op over names. names supplies the
// fallback item count and labels when events omit total_files or file_name.
func NewMachine(op OperationType, names []string, logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Machine{
		state:  RunState{Operation: op, Phase: PhaseIdle},
		ledger: NewLedger(),
		names:  append([]string(nil), names...),
		log:    logger,
	}
	m.ensureItems(len(names))
	return m
}

// State returns a copy of the current run state.
func (m *Machine) State() RunState {
	return m.state.clone()
}

// Ledger returns the run's progress ledger.
func (m *Machine) Ledger() *Ledger {
	return m.ledger
}

// Done reports whether a terminal event has been applied.
func (m *Machine) Done() bool {
	return m.state.Phase.Terminal()
}

// Apply folds one event into the run state. Once the run is terminal it
// returns nil and leaves the state untouched.
func (m *Machine) Apply(ev *stream.Event) []Update {
	if ev == nil {
		return nil
	}
	if m.state.Phase.Terminal() {
		m.log.Debug().Str("type", string(ev.Type)).Str("phase", m.state.Phase.String()).Msg("ignoring event after terminal")
		return nil
	}

	var out []Update
	if m.state.Phase == PhaseIdle && ev.Type != stream.TypeStart && !ev.Type.Terminal() {
		// Some servers skip "start"; the first event opens the run.
		out = append(out, m.begin(ev.TotalFiles, 0)...)
	}

	switch ev.Type {
	case stream.TypeStart:
		out = append(out, m.begin(ev.TotalFiles, ev.TotalWorkers)...)

	case stream.TypeHeartbeat, stream.TypeSyncComplete:
		m.log.Debug().Str("type", string(ev.Type)).Msg("stream marker")

	case stream.TypeFileQueued, stream.TypeFileProcessing, stream.TypeFileStart, stream.TypeFileUploading,
		stream.TypeFileChecking, stream.TypeDeleteExistingEmbeddings,
		stream.TypeCleanupStart, stream.TypeCleanupProgress, stream.TypeCleanupComplete,
		stream.TypeAutoConvertStart, stream.TypeAutoConvertProgress, stream.TypeAutoConvertComplete,
		stream.TypeVectorizeStart:
		out = append(out, m.phase(ev)...)

	case stream.TypePageProgress:
		out = append(out, m.pageProgress(ev)...)

	case stream.TypePagesCount:
		if ev.TotalPages > 0 {
			m.state.TotalPagesAllFiles += ev.TotalPages
		}

	case stream.TypeFileComplete:
		out = append(out, m.finishItem(ev, ItemSuccess)...)

	case stream.TypeFileError:
		m.log.Warn().Int("file_index", ev.FileIndex).Str("file", ev.FileName).Str("error", ev.Error).Msg("item failed")
		out = append(out, m.finishItem(ev, ItemFailed)...)

	case stream.TypeProgressUpdate:
		out = append(out, m.progressUpdate(ev))

	case stream.TypeComplete:
		out = append(out, m.complete(ev)...)

	case stream.TypeCancelled:
		out = append(out, m.cancelled(ev)...)

	case stream.TypeError:
		out = append(out, m.errored(ev)...)

	default:
		m.log.Warn().Str("type", string(ev.Type)).Msg("ignoring unknown stream event")
	}
	return out
}

func (m *Machine) begin(totalFiles, workers int) []Update {
	if totalFiles <= 0 {
		totalFiles = len(m.names)
	}
	if limit := m.maxFiles(); totalFiles > limit {
		m.log.Warn().Int("total_files", totalFiles).Int("limit", limit).Msg("clamping total_files")
		totalFiles = limit
	}
	first := m.state.Phase == PhaseIdle
	m.state.Phase = PhaseRunning
	if totalFiles > m.state.TotalFiles {
		m.state.TotalFiles = totalFiles
	}
	if workers > 0 {
		m.state.TotalWorkers = workers
	}
	m.ensureItems(m.state.TotalFiles)

	text := fmt.Sprintf("%s: %d file(s)", m.state.Operation.Title(), m.state.TotalFiles)
	if m.state.TotalWorkers > 0 {
		text += fmt.Sprintf(" on %d worker(s)", m.state.TotalWorkers)
	}
	out := []Update{m.status(text, m.aggregatePercent())}
	if first {
		out = append(out, Update{Kind: UpdateControls, Cancelable: true})
	}
	return out
}

func (m *Machine) phase(ev *stream.Event) []Update {
	step := phaseSteps[ev.Type]
	idx := m.resolveIndex(ev.FileIndex)
	if idx == 0 {
		m.log.Debug().Str("type", string(ev.Type)).Msg("phase event without file index")
		return nil
	}

	if (ev.Type == stream.TypeFileStart || ev.Type == stream.TypeVectorizeStart) && idx != m.state.CurrentFileIndex {
		m.state.CurrentPageIndex = 0
		m.state.TotalPages = 0
	}
	// Servers may queue every file up front; only work on a file makes it current.
	if ev.Type != stream.TypeFileQueued {
		m.state.CurrentFileIndex = idx
	}
	if ev.Type == stream.TypeVectorizeStart && ev.TotalPages > 0 {
		m.state.TotalPages = ev.TotalPages
	}

	detail := step.detail
	switch ev.Type {
	case stream.TypeCleanupProgress, stream.TypeCleanupComplete:
		if ev.DeletedCount > 0 || ev.CleanupCount > 0 {
			detail = fmt.Sprintf("%s (%d/%d)", detail, ev.DeletedCount, ev.CleanupCount)
		}
	case stream.TypeVectorizeStart:
		if ev.TotalPages > 0 {
			detail = fmt.Sprintf("%s %d page(s)", detail, ev.TotalPages)
		}
	}

	name := m.nameFor(idx, ev.FileName)
	item := m.setItem(idx, name, step.state, m.ledger.RecordAndClamp(idx, step.checkpoint), detail)
	out := []Update{
		{Kind: UpdateItem, Item: item},
		m.status(m.fileStatus(idx, name, detail), m.aggregatePercent()),
	}

	switch ev.Type {
	case stream.TypeAutoConvertStart:
		out = append(out, Update{Kind: UpdateToast, Level: ToastInfo,
			Text: fmt.Sprintf("%s has no page images yet, converting before vectorizing", name)})
	case stream.TypeAutoConvertComplete:
		out = append(out, Update{Kind: UpdateToast, Level: ToastInfo,
			Text: fmt.Sprintf("%s converted, continuing with vectorization", name)})
	}
	return out
}

func (m *Machine) pageProgress(ev *stream.Event) []Update {
	idx := m.resolveIndex(ev.FileIndex)
	if idx == 0 {
		return nil
	}
	if idx != m.state.CurrentFileIndex {
		m.state.CurrentFileIndex = idx
		m.state.TotalPages = 0
	}

	total := ev.TotalPages
	if total <= 0 {
		total = m.state.TotalPages
	}
	if total > 0 {
		m.state.TotalPages = total
	}
	m.state.CurrentPageIndex = ev.PageIndex
	m.state.ProcessedPages++

	percent := m.ledger.Get(idx)
	if total > 0 {
		var candidate int
		if m.state.Operation == OpVectorize {
			candidate = VectorizePageProgress(ev.PageIndex, total)
		} else {
			candidate = ConvertPageProgress(ev.PageIndex, total)
		}
		percent = m.ledger.RecordAndClamp(idx, candidate)
	}

	name := m.nameFor(idx, ev.FileName)
	detail := fmt.Sprintf("page %d/%d", ev.PageIndex, total)
	item := m.setItem(idx, name, ItemActive, percent, detail)
	return []Update{
		{Kind: UpdateItem, Item: item},
		m.status(m.fileStatus(idx, name, detail), m.aggregatePercent()),
	}
}

func (m *Machine) finishItem(ev *stream.Event, state ItemState) []Update {
	idx := m.resolveIndex(ev.FileIndex)
	if idx == 0 {
		return nil
	}
	name := m.nameFor(idx, ev.FileName)
	percent := m.ledger.RecordAndClamp(idx, 100)

	prev := m.state.Items[idx-1].State
	if !prev.Done() {
		m.state.Completed++
		if state == ItemSuccess {
			m.state.Succeeded++
		} else {
			m.state.Failed++
		}
	}

	detail := "done"
	if state == ItemFailed {
		detail = ev.Error
		if detail == "" {
			detail = ev.Message
		}
		if detail == "" {
			detail = "failed"
		}
	}
	item := m.setItem(idx, name, state, percent, detail)

	text := fmt.Sprintf("%s: %d of %d done (%d success, %d failed)", m.state.Operation.Title(),
		m.state.Completed, m.state.TotalFiles, m.state.Succeeded, m.state.Failed)
	return []Update{
		{Kind: UpdateItem, Item: item},
		m.status(text, m.aggregatePercent()),
	}
}

func (m *Machine) progressUpdate(ev *stream.Event) Update {
	total := ev.TotalCount
	if total <= 0 {
		total = m.state.TotalFiles
	}
	percent := m.aggregatePercent()
	if total > 0 && ev.CompletedCount > 0 {
		if p := ev.CompletedCount * 100 / total; p > percent {
			percent = p
		}
	}
	if percent > 100 {
		percent = 100
	}
	text := fmt.Sprintf("%s: %d of %d processed (%d success, %d failed)", m.state.Operation.Title(),
		ev.CompletedCount, total, ev.SuccessCount, ev.FailedCount)
	if ev.Message != "" {
		text += ": " + ev.Message
	}
	return m.status(text, percent)
}

func (m *Machine) complete(ev *stream.Event) []Update {
	m.state.Phase = PhaseCompleted

	for _, r := range ev.Results {
		m.applyResult(r)
	}

	success, failed := ev.SuccessCount, ev.FailedCount
	if success == 0 && failed == 0 {
		success, failed = m.state.Succeeded, m.state.Failed
	}

	text := fmt.Sprintf("%s complete: %d success, %d failed", m.state.Operation.Title(), success, failed)
	level := ToastSuccess
	if failed > 0 || (ev.Success != nil && !*ev.Success) {
		level = ToastWarning
	}
	toast := text
	if ev.Message != "" {
		toast = fmt.Sprintf("%s (%d success, %d failed)", ev.Message, success, failed)
	}

	m.state.Percent = 100
	return []Update{
		m.status(text, 100),
		{Kind: UpdateControls, Cancelable: false, Closable: true},
		{Kind: UpdateToast, Level: level, Text: toast},
		{Kind: UpdateTerminal, Outcome: OutcomeCompleted, Settle: true},
	}
}

func (m *Machine) cancelled(ev *stream.Event) []Update {
	m.state.Phase = PhaseCancelled
	text := fmt.Sprintf("%s cancelled after %d of %d file(s)", m.state.Operation.Title(), m.state.Completed, m.state.TotalFiles)
	if ev.Message != "" {
		text += ": " + ev.Message
	}
	return []Update{
		m.status(text, m.aggregatePercent()),
		{Kind: UpdateControls},
		{Kind: UpdateToast, Level: ToastWarning, Text: text},
		{Kind: UpdateTerminal, Outcome: OutcomeCancelled},
	}
}

func (m *Machine) errored(ev *stream.Event) []Update {
	m.state.Phase = PhaseErrored
	reason := ev.Error
	if reason == "" {
		reason = ev.Message
	}
	if reason == "" {
		reason = "server reported an error"
	}
	text := fmt.Sprintf("%s failed: %s", m.state.Operation.Title(), reason)
	return []Update{
		m.status(text, m.aggregatePercent()),
		{Kind: UpdateControls},
		{Kind: UpdateToast, Level: ToastError, Text: text},
		{Kind: UpdateTerminal, Outcome: OutcomeErrored},
	}
}

// applyResult reconciles a per-object result from "complete" with items
// the stream never finished.
func (m *Machine) applyResult(r stream.Result) {
	for i := range m.state.Items {
		it := &m.state.Items[i]
		if it.Name != r.FileName || it.State.Done() {
			continue
		}
		it.Percent = m.ledger.RecordAndClamp(it.Index, 100)
		if r.Success {
			it.State = ItemSuccess
			it.Detail = "done"
		} else {
			it.State = ItemFailed
			it.Detail = r.Error
		}
		return
	}
}

func (m *Machine) status(text string, percent int) Update {
	if percent > m.state.Percent {
		m.state.Percent = percent
	}
	m.state.Status = text
	return Update{Kind: UpdateStatus, Text: text, Percent: m.state.Percent}
}

// aggregatePercent is the overall bar value. Convert runs that announced
// their page totals track pages across all files; everything else averages
// the ledger.
func (m *Machine) aggregatePercent() int {
	if m.state.Operation == OpConvert && m.state.TotalPagesAllFiles > 0 {
		p := m.state.ProcessedPages * 100 / m.state.TotalPagesAllFiles
		if p > 99 {
			p = 99
		}
		if done := m.ledger.Average(m.state.TotalFiles); m.state.Completed == m.state.TotalFiles && done > p {
			p = done
		}
		return p
	}
	return m.ledger.Average(m.state.TotalFiles)
}

func (m *Machine) fileStatus(idx int, name, detail string) string {
	return fmt.Sprintf("%s %d/%d: %s (%s)", m.state.Operation.Title(), idx, m.state.TotalFiles, name, detail)
}

// resolveIndex falls back to the current file for events that omit
// file_index, and grows the item list when the server exceeds total_files.
// Growth stops at maxFiles; events past it resolve to 0 and are dropped.
func (m *Machine) resolveIndex(idx int) int {
	if idx <= 0 {
		idx = m.state.CurrentFileIndex
	}
	if idx <= 0 {
		return 0
	}
	if limit := m.maxFiles(); idx > limit {
		m.log.Warn().Int("file_index", idx).Int("limit", limit).Msg("dropping event with out-of-range file index")
		return 0
	}
	if idx > m.state.TotalFiles {
		m.log.Debug().Int("file_index", idx).Int("total_files", m.state.TotalFiles).Msg("file index beyond total")
		m.state.TotalFiles = idx
	}
	m.ensureItems(m.state.TotalFiles)
	return idx
}

// maxFiles bounds the item list: the requested names plus a little slack,
// or MaxBatchFiles when the request named nothing.
func (m *Machine) maxFiles() int {
	if len(m.names) > 0 {
		return len(m.names) + constants.FileIndexSlack
	}
	return constants.MaxBatchFiles
}

func (m *Machine) ensureItems(n int) {
	for i := len(m.state.Items); i < n; i++ {
		m.state.Items = append(m.state.Items, ItemStatus{
			Index: i + 1,
			Name:  m.nameFor(i+1, ""),
			State: ItemPending,
		})
	}
}

func (m *Machine) nameFor(idx int, fromEvent string) string {
	if fromEvent = strings.TrimSpace(fromEvent); fromEvent != "" {
		return fromEvent
	}
	if idx >= 1 && idx <= len(m.names) {
		return m.names[idx-1]
	}
	if idx >= 1 && idx <= len(m.state.Items) && m.state.Items[idx-1].Name != "" {
		return m.state.Items[idx-1].Name
	}
	return fmt.Sprintf("file %d", idx)
}

func (m *Machine) setItem(idx int, name string, state ItemState, percent int, detail string) ItemStatus {
	it := &m.state.Items[idx-1]
	it.Name = name
	// A late phase event must not revive a finished item.
	if !it.State.Done() {
		it.State = state
		it.Detail = detail
	}
	it.Percent = percent
	return *it
}
