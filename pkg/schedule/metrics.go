/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	solverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rostrum",
		Subsystem: "schedule",
		Name:      "solver_duration_seconds",
		Help:      "Wall-clock time spent in the external MIP solver.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rostrum",
		Subsystem: "schedule",
		Name:      "runs_total",
		Help:      "Scheduling runs by terminal stage.",
	}, []string{"stage"})
)
