package profile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/domain/scoring"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/httpx"
)

// Options scope an aggregation.
type Options struct {
	// Range limits the timeline, the VHI history and the recordings to
	// events dated inside it. The one-per-patient assessments are always
	// included.
	Range httpx.DateRange
	// DownloadURL, when set, builds the downloadUrl of each recording.
	DownloadURL func(rec *voice.Recording) string
}

// LimitedSampleSeconds is the total recorded duration below which the voice
// sample is flagged as limited.
const LimitedSampleSeconds = 60

// CompletenessTarget is the completeness percentage below which the
// assessment is flagged as incomplete.
const CompletenessTarget = 80

type Aggregator struct {
	src    Source
	logger zerolog.Logger
}

func NewAggregator(src Source, logger zerolog.Logger) *Aggregator {
	return &Aggregator{src: src, logger: logger}
}

// Aggregate loads userID and every related record into a Profile. An unknown
// patient is NotFound. A related record that fails to load or is malformed
// is left out and named in Profile.Unavailable.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, opts Options) (*Profile, error) {
	patient, err := a.src.Patient(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		BasicInfo: BasicInfo{
			UserID:           patient.UserID,
			ParticipantName:  patient.ParticipantName,
			WitnessName:      patient.WitnessName,
			ConsentAccepted:  patient.ConsentAccepted,
			RegistrationDate: patient.CreatedAt,
		},
	}
	log := a.logger.With().Str("user_id", userID).Logger()
	unavailable := func(what string, err error) {
		log.Warn().Err(err).Str("record", what).Msg("related record unavailable, continuing without it")
		p.Unavailable = append(p.Unavailable, what)
	}

	if d, err := a.src.Demographics(ctx, userID); err != nil {
		unavailable("demographics", err)
	} else {
		p.Demographics = d
	}
	if h, err := a.src.HealthHistory(ctx, userID); err != nil {
		unavailable("healthHistory", err)
	} else {
		p.HealthHistory = h
	}
	if o, err := a.src.OralCancer(ctx, userID); err != nil {
		unavailable("oralCancer", err)
	} else {
		p.CancerAssessments.Oral = o
	}
	if l, err := a.src.ThroatCancer(ctx, userID, intake.SiteLarynx); err != nil {
		unavailable("larynxHypopharynx", err)
	} else {
		p.CancerAssessments.Larynx = l
	}
	if ph, err := a.src.ThroatCancer(ctx, userID, intake.SitePharynx); err != nil {
		unavailable("pharynxCancer", err)
	} else {
		p.CancerAssessments.Pharynx = ph
	}

	var vhis []*intake.VHIAssessment
	if list, err := a.src.VHIAssessments(ctx, userID); err != nil {
		unavailable("voiceHandicapIndex", err)
	} else {
		vhis = filterVHI(list, opts.Range)
		if len(vhis) > 0 {
			if vh, err := voiceHandicap(vhis[0], len(vhis)); err != nil {
				unavailable("voiceHandicapIndex", err)
			} else {
				p.VoiceHandicapIndex = vh
			}
		}
	}

	p.GRBASRatings = []*intake.GRBASRating{}
	if list, err := a.src.GRBASRatings(ctx, userID); err != nil {
		unavailable("grbasRatings", err)
	} else {
		for _, g := range list {
			if opts.Range.Contains(g.EvaluationDate) {
				p.GRBASRatings = append(p.GRBASRatings, g)
			}
		}
	}

	var recordings []*voice.Recording
	if list, err := a.src.Recordings(ctx, userID); err != nil {
		unavailable("voiceRecordings", err)
	} else {
		for _, r := range list {
			if opts.Range.Contains(r.RecordingDate) {
				recordings = append(recordings, r)
			}
		}
	}
	p.VoiceAnalysis = analyzeRecordings(recordings, opts.DownloadURL)

	p.Timeline = buildTimeline(p, vhis, opts.Range)
	p.AnalysisNotes = Notes(p)
	return p, nil
}

func filterVHI(list []*intake.VHIAssessment, r httpx.DateRange) []*intake.VHIAssessment {
	var out []*intake.VHIAssessment
	for _, v := range list {
		if r.Contains(v.DateCompleted) {
			out = append(out, v)
		}
	}
	return out
}

// voiceHandicap recomputes the stored scores from the item maps. Stored
// subscores that disagree with their items make the assessment unusable.
func voiceHandicap(v *intake.VHIAssessment, count int) (*VoiceHandicap, error) {
	res, err := scoring.VHIScores(v.FunctionalScores, v.PhysicalScores, v.EmotionalScores)
	if err != nil {
		return nil, fmt.Errorf("vhi %s: %w", v.ID, err)
	}
	if res.FunctionalSubscore != v.FunctionalSubscore || res.PhysicalSubscore != v.PhysicalSubscore ||
		res.EmotionalSubscore != v.EmotionalSubscore || res.TotalScore != v.TotalScore {
		return nil, fmt.Errorf("vhi %s: stored scores do not match item responses", v.ID)
	}
	return &VoiceHandicap{
		ID:                 v.ID,
		FunctionalSubscore: res.FunctionalSubscore,
		PhysicalSubscore:   res.PhysicalSubscore,
		EmotionalSubscore:  res.EmotionalSubscore,
		TotalScore:         res.TotalScore,
		Severity:           res.Severity,
		FunctionalScores:   v.FunctionalScores,
		PhysicalScores:     v.PhysicalScores,
		EmotionalScores:    v.EmotionalScores,
		Language:           v.Language,
		DateCompleted:      v.DateCompleted,
		AssessmentCount:    count,
	}, nil
}

// analyzeRecordings sorts recordings by date, keeping input order for ties.
func analyzeRecordings(list []*voice.Recording, downloadURL func(*voice.Recording) string) VoiceAnalysis {
	sorted := make([]*voice.Recording, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RecordingDate.Before(sorted[j].RecordingDate) })

	va := VoiceAnalysis{TaskTypes: []string{}, Languages: []string{}, Recordings: []RecordingEntry{}}
	seenTask := map[string]bool{}
	seenLang := map[string]bool{}
	for _, r := range sorted {
		va.TotalDuration += r.DurationSeconds
		if !seenTask[r.TaskType] {
			seenTask[r.TaskType] = true
			va.TaskTypes = append(va.TaskTypes, r.TaskType)
		}
		if !seenLang[r.Language] {
			seenLang[r.Language] = true
			va.Languages = append(va.Languages, r.Language)
		}
		entry := RecordingEntry{
			ID:              r.ID,
			SessionID:       r.SessionID,
			TaskType:        r.TaskType,
			Language:        r.Language,
			DurationSeconds: r.DurationSeconds,
			FilePath:        r.AudioFilePath,
			RecordingDate:   r.RecordingDate,
		}
		if downloadURL != nil {
			entry.DownloadURL = downloadURL(r)
		}
		va.Recordings = append(va.Recordings, entry)
	}
	return va
}

// buildTimeline flattens every dated record into one list sorted ascending.
// Events are appended in a fixed order so ties keep a stable position.
func buildTimeline(p *Profile, vhis []*intake.VHIAssessment, r httpx.DateRange) []TimelineEvent {
	events := []TimelineEvent{}
	add := func(e TimelineEvent) {
		if r.Contains(e.Date) {
			events = append(events, e)
		}
	}

	if d := p.Demographics; d != nil {
		add(TimelineEvent{Type: EventDemographics, Date: d.CreatedAt, RefID: d.ID.String()})
	}
	if h := p.HealthHistory; h != nil {
		add(TimelineEvent{Type: EventHealthHistory, Date: h.CreatedAt, RefID: h.ID.String()})
	}
	if o := p.CancerAssessments.Oral; o != nil {
		add(TimelineEvent{Type: EventOralCancer, Date: o.CreatedAt, RefID: o.ID.String(), Summary: o.DiagnosisSummary()})
	}
	if l := p.CancerAssessments.Larynx; l != nil {
		add(TimelineEvent{Type: EventLarynx, Date: l.CreatedAt, RefID: l.ID.String(), Summary: l.DiagnosisSummary()})
	}
	if ph := p.CancerAssessments.Pharynx; ph != nil {
		add(TimelineEvent{Type: EventPharynx, Date: ph.CreatedAt, RefID: ph.ID.String(), Summary: ph.DiagnosisSummary()})
	}
	// History is newest first; walk it oldest first.
	for i := len(vhis) - 1; i >= 0; i-- {
		v := vhis[i]
		add(TimelineEvent{Type: EventVHI, Date: v.DateCompleted, RefID: v.ID.String(),
			Summary: fmt.Sprintf("total %d (%s)", v.TotalScore, v.Severity())})
	}
	for _, g := range p.GRBASRatings {
		add(TimelineEvent{Type: EventGRBAS, Date: g.EvaluationDate, RefID: g.ID.String(),
			Summary: fmt.Sprintf("task %d by %s", g.TaskNumber, g.ClinicianName)})
	}
	for _, rec := range p.VoiceAnalysis.Recordings {
		add(TimelineEvent{Type: EventRecording, Date: rec.RecordingDate, RefID: rec.ID.String(),
			Summary: fmt.Sprintf("%s (%s, %.1fs)", rec.TaskType, rec.Language, rec.DurationSeconds)})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events
}

// Sections maps the profile onto the completeness checklist. Basic info
// counts when the participant is named and has given consent.
func Sections(p *Profile) scoring.Sections {
	return scoring.Sections{
		BasicInfo:        p.BasicInfo.ParticipantName != "" && p.BasicInfo.ConsentAccepted,
		Demographics:     p.Demographics != nil,
		HealthHistory:    p.HealthHistory != nil,
		CancerAssessment: p.CancerAssessments.Any(),
		VHI:              p.VoiceHandicapIndex != nil,
		VoiceRecordings:  len(p.VoiceAnalysis.Recordings) > 0,
	}
}

// Notes derives the clinical annotations of a profile.
func Notes(p *Profile) AnalysisNotes {
	completeness := scoring.CompletenessPercentage(Sections(p))
	risks := RiskFactors(p)
	n := AnalysisNotes{
		CompletenessPercentage: completeness,
		PriorityLevel: scoring.PriorityLevel(scoring.PriorityInput{
			VHITotal:            p.VHITotal(),
			TobaccoAffirmative:  p.TobaccoAffirmative(),
			AlcoholAffirmative:  p.AlcoholAffirmative(),
			HasCancerAssessment: p.CancerAssessments.Any(),
		}),
		RiskFactors:     risks,
		VoiceConcerns:   VoiceConcerns(p),
		Recommendations: []Recommendation{},
	}

	if completeness < CompletenessTarget {
		n.Recommendations = append(n.Recommendations, Recommendation{
			Type: "Complete Assessment", Priority: LevelHigh,
			Description: "Patient assessment is incomplete. Follow up to gather missing information.",
		})
	}
	if total := p.VHITotal(); total != nil && *total > 30 {
		n.Recommendations = append(n.Recommendations, Recommendation{
			Type: "Voice Therapy Evaluation", Priority: LevelHigh,
			Description: "Consider referral to a speech-language pathologist for voice therapy evaluation.",
		})
	}
	for _, r := range risks {
		if r.Severity == LevelHigh {
			n.Recommendations = append(n.Recommendations, Recommendation{
				Type: "Risk Factor Management", Priority: LevelHigh,
				Description: "Address high-risk factors as part of the treatment plan.",
			})
			break
		}
	}
	if p.CancerAssessments.Any() {
		n.Recommendations = append(n.Recommendations, Recommendation{
			Type: "Oncology Consultation", Priority: LevelHigh,
			Description: "A cancer-site assessment is on file. Coordinate with the oncology team.",
		})
	}
	return n
}

func RiskFactors(p *Profile) []RiskFactor {
	out := []RiskFactor{}
	if p.TobaccoAffirmative() {
		out = append(out, RiskFactor{Type: "Tobacco Use", Severity: LevelHigh, Details: joinNonEmpty(p.HealthHistory.TobaccoUse, p.HealthHistory.CurrentTobaccoStatus)})
	}
	if p.AlcoholAffirmative() {
		out = append(out, RiskFactor{Type: "Alcohol Use", Severity: LevelModerate, Details: joinNonEmpty(p.HealthHistory.AlcoholUse, p.HealthHistory.AlcoholFrequency)})
	}
	if p.ProfessionalVoiceUse() {
		out = append(out, RiskFactor{Type: "Professional Voice Use", Severity: LevelLow, Details: joinNonEmpty(p.HealthHistory.VoiceOccupation, p.HealthHistory.VoiceHours)})
	}
	var sites []string
	if p.CancerAssessments.Oral != nil {
		sites = append(sites, "oral")
	}
	if p.CancerAssessments.Larynx != nil {
		sites = append(sites, "larynx/hypopharynx")
	}
	if p.CancerAssessments.Pharynx != nil {
		sites = append(sites, "pharynx")
	}
	if len(sites) > 0 {
		out = append(out, RiskFactor{Type: "Cancer Assessment", Severity: LevelHigh, Details: strings.Join(sites, ", ")})
	}
	return out
}

func VoiceConcerns(p *Profile) []VoiceConcern {
	out := []VoiceConcern{}
	if total := p.VHITotal(); total != nil {
		switch {
		case *total > 60:
			out = append(out, VoiceConcern{Type: "Severe Voice Handicap", Score: total, Priority: LevelHigh})
		case *total > 30:
			out = append(out, VoiceConcern{Type: "Moderate Voice Handicap", Score: total, Priority: LevelMedium})
		}
	}
	switch {
	case len(p.VoiceAnalysis.Recordings) == 0:
		out = append(out, VoiceConcern{Type: "No Voice Recordings", Details: "No voice samples available for analysis", Priority: LevelHigh})
	case p.VoiceAnalysis.TotalDuration < LimitedSampleSeconds:
		out = append(out, VoiceConcern{Type: "Limited Voice Sample", Details: "Insufficient recording duration for comprehensive analysis", Priority: LevelMedium})
	}
	return out
}

func isYes(answer string) bool {
	return scoring.IsAffirmative(answer)
}

func isProfessional(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "professional" || scoring.IsAffirmative(a)
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
