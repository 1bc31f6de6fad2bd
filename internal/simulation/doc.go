// Package simulation provides a multi-step test harness for validating the
// emergent dynamics of the network: habituation, novelty-driven alert and
// alert-boosted recovery.
//
// The simulation exercises the real Network and SQLiteRunStore, with no
// mocks. Scenarios are Go builders that configure a network, a stimulus
// schedule and optional interventions, then run a number of steps while
// capturing per-unit firing, energy and priority for property-based
// assertions. Every step is also persisted so the stored series can be
// checked against the live one.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestHabituation(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:     "habituation",
//	        Steps:    200,
//	        Stimulus: simulation.Pulse([]int{55}, 2.0, 11, 100),
//	    })
//	    simulation.AssertNoFiringIn(t, result, 55, 100, 200)
//	}
package simulation
