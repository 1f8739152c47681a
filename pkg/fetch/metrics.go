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

package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rostrum",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream requests issued, partitioned by response status.",
	}, []string{"status"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rostrum",
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Total upstream request retries after 429/5xx responses.",
	})

	requestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rostrum",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Wall-clock latency of upstream requests.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
