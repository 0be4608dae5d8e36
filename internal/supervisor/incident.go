// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"time"

	"runplane/internal/classify"
	"runplane/internal/runstore"
)

// Incident 终态升级报告：总是持久化到 Sink，定位符挂到 Job
type Incident struct {
	JobID          string                   `json:"job_id"`
	RunID          string                   `json:"run_id"`
	AttemptID      string                   `json:"attempt_id,omitempty"`
	Classification *runstore.Classification `json:"classification,omitempty"`
	Reason         string                   `json:"reason"`
	CreatedAt      time.Time                `json:"created_at"`
	Hypotheses     []string                 `json:"hypotheses,omitempty"`
}

func newIncident(jobID, runID, attemptID string, cls *runstore.Classification, reason string) *Incident {
	return &Incident{
		JobID:          jobID,
		RunID:          runID,
		AttemptID:      attemptID,
		Classification: cls,
		Reason:         reason,
		CreatedAt:      time.Now(),
		Hypotheses:     hypothesesFor(cls),
	}
}

// hypothesesFor 按类别给人工排查的起手线索；自由文本，仅供 triage
func hypothesesFor(cls *runstore.Classification) []string {
	if cls == nil {
		return []string{"no classification available; inspect the attempt artifacts directly"}
	}
	switch cls.Category {
	case classify.CategoryInfra:
		return []string{
			"check upstream service availability and recent deploys",
			"inspect network path between worker and target",
		}
	case classify.CategoryProduct:
		return []string{
			"a product assertion failed; compare against the last known-good run",
			"check whether the product changed behavior intentionally",
		}
	case classify.CategoryAutomation:
		return []string{
			"the automation harness itself failed; review selectors and driver versions",
			"re-run locally with the harness in verbose mode",
		}
	case classify.CategoryEnv:
		return []string{"diff the execution environment against the baseline image"}
	case classify.CategoryData:
		return []string{"verify fixtures and seed data for the affected scenario"}
	case classify.CategoryFlaky:
		return []string{"inspect timing-sensitive steps; the signature matches known flakiness"}
	default:
		return []string{"no recognizable signal; read the raw artifacts"}
	}
}
