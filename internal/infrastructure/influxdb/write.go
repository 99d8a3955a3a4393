package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStageDuration records the measured duration of a single macro stage.
//
// The write is non-blocking; data is batched and sent asynchronously.
// One point per completed (or failed) stage, tagged by macro and stage
// name so dashboards can track overhead trends per stage.
//
// Parameters:
//   - macro: Macro name (e.g., "goto_field", "expose")
//   - stage: Stage name (e.g., "slew", "acquire")
//   - elapsed: Wall-clock duration of the stage
//   - success: Whether the stage completed without error
func (c *Client) WriteStageDuration(macro, stage string, elapsed time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"stage_duration",
		map[string]string{
			"macro": macro,
			"stage": stage,
		},
		map[string]interface{}{
			"seconds": elapsed.Seconds(),
			"success": success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMacroDuration records the total duration of a macro run.
//
// Parameters:
//   - macro: Macro name
//   - macroID: Run identifier (monotonically increasing per process)
//   - elapsed: Wall-clock duration from first stage start to last stage end
//   - success: Whether the run finished without failure or cancellation
func (c *Client) WriteMacroDuration(macro string, macroID int64, elapsed time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"macro_duration",
		map[string]string{
			"macro": macro,
		},
		map[string]interface{}{
			"macro_id": macroID,
			"seconds":  elapsed.Seconds(),
			"success":  success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteExposureProgress records the current exposure state and estimated
// time remaining, written whenever the exposure helper updates its plan.
//
// Parameters:
//   - state: Exposure state keyword (e.g., "exposing", "reading", "idle")
//   - current: 1-based index of the exposure in progress
//   - total: Total exposures planned
//   - etrSeconds: Estimated time remaining for the whole sequence
func (c *Client) WriteExposureProgress(state string, current, total int, etrSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"exposure_progress",
		map[string]string{
			"state": state,
		},
		map[string]interface{}{
			"current": current,
			"total":   total,
			"etr":     etrSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
