// Package reporting evaluates predefined SQL measures over the intake tables.
// The admin statistics endpoint is assembled from these measures.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/platform/auth"
	"github.com/voiceintake/intake/internal/platform/db"
)

const (
	MeasureTableCounts          = "table-counts"
	MeasureVHISeverity          = "vhi-severity-distribution"
	MeasureCompletion           = "completion-analysis"
	MeasureRecordingTasks       = "recording-task-distribution"
	MeasureConditionAssignments = "condition-assignments"
)

// ErrUnknownMeasure is returned for a measure id that is not predefined.
var ErrUnknownMeasure = errors.New("unknown measure")

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string           `json:"measureId"`
	MeasureName string           `json:"measureName"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Results     []map[string]any `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          MeasureTableCounts,
		Name:        "Table Counts",
		Description: "Number of rows in each intake table",
		SQL: `SELECT
    (SELECT COUNT(*) FROM patients)                  AS patients,
    (SELECT COUNT(*) FROM demographics)              AS demographics,
    (SELECT COUNT(*) FROM health_histories)          AS health_histories,
    (SELECT COUNT(*) FROM oral_cancer_assessments)   AS oral_cancer,
    (SELECT COUNT(*) FROM throat_cancer_assessments WHERE site = 'larynx')  AS larynx_cancer,
    (SELECT COUNT(*) FROM throat_cancer_assessments WHERE site = 'pharynx') AS pharynx_cancer,
    (SELECT COUNT(*) FROM vhi_assessments)           AS vhi_assessments,
    (SELECT COUNT(*) FROM grbas_ratings)             AS grbas_ratings,
    (SELECT COUNT(*) FROM voice_recordings)          AS voice_recordings,
    (SELECT COUNT(*) FROM task_assignments)          AS task_assignments`,
	},
	{
		ID:          MeasureVHISeverity,
		Name:        "VHI Severity Distribution",
		Description: "VHI assessments grouped by severity band",
		SQL: `SELECT CASE
        WHEN total_score <= 30 THEN 'Mild'
        WHEN total_score <= 60 THEN 'Moderate'
        ELSE 'Severe'
    END AS severity, COUNT(*) AS total
FROM vhi_assessments
GROUP BY 1
ORDER BY 1`,
	},
	{
		ID:          MeasureCompletion,
		Name:        "Completion Analysis",
		Description: "Patients by how many of demographics, health history, VHI and recordings they completed",
		SQL: `SELECT
    COUNT(*) FILTER (WHERE sections >= 4)                 AS fully_complete,
    COUNT(*) FILTER (WHERE sections >= 2 AND sections < 4) AS partially_complete,
    COUNT(*) FILTER (WHERE sections < 2)                  AS minimal_data,
    COUNT(*) FILTER (WHERE has_recordings)                AS with_voice_recordings
FROM (
    SELECT p.user_id,
        (EXISTS (SELECT 1 FROM demographics d WHERE d.user_id = p.user_id))::int
      + (EXISTS (SELECT 1 FROM health_histories h WHERE h.user_id = p.user_id))::int
      + (EXISTS (SELECT 1 FROM vhi_assessments v WHERE v.user_id = p.user_id))::int
      + (EXISTS (SELECT 1 FROM voice_recordings r WHERE r.user_id = p.user_id))::int AS sections,
        EXISTS (SELECT 1 FROM voice_recordings r WHERE r.user_id = p.user_id) AS has_recordings
    FROM patients p
) s`,
	},
	{
		ID:          MeasureRecordingTasks,
		Name:        "Recording Task Distribution",
		Description: "Voice recordings grouped by task type and language",
		SQL:         `SELECT task_type, language, COUNT(*) AS total FROM voice_recordings GROUP BY task_type, language ORDER BY total DESC, task_type`,
	},
	{
		ID:          MeasureConditionAssignments,
		Name:        "Task Assignments by Condition",
		Description: "Task assignments grouped by condition and status",
		SQL:         `SELECT condition, status, COUNT(*) AS total FROM task_assignments GROUP BY condition, status ORDER BY condition, status`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Evaluator runs measures against the database.
type Evaluator struct {
	q   db.Querier
	now func() time.Time
}

func NewEvaluator(q db.Querier) *Evaluator {
	return &Evaluator{q: q, now: time.Now}
}

// Evaluate runs the measure identified by id. An unknown id is ErrUnknownMeasure.
func (e *Evaluator) Evaluate(ctx context.Context, id string) (*MeasureReport, error) {
	measure := FindMeasure(id)
	if measure == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMeasure, id)
	}
	results, err := e.executeSQL(ctx, measure.SQL)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	return &MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: e.now().UTC(),
		Results:     results,
	}, nil
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (e *Evaluator) executeSQL(ctx context.Context, sql string) ([]map[string]any, error) {
	rows, err := db.QuerierFromContext(ctx, e.q).Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Int reads an integer column from a result row. Missing or non-numeric
// values read as zero.
func Int(row map[string]any, key string) int {
	switch v := row[key].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Handler exposes the measures over HTTP.
type Handler struct {
	eval *Evaluator
}

func NewHandler(eval *Evaluator) *Handler {
	return &Handler{eval: eval}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	if FindMeasure(c.Param("id")) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}
	report, err := h.eval.Evaluate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}
	return c.JSON(http.StatusOK, report)
}
