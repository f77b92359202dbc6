/*
Mailward - mail submission policy daemon.
Copyright © 2021-2024 Mailward contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package policy

import "github.com/prometheus/client_golang/prometheus"

var (
	failedLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailward",
			Subsystem: "policy",
			Name:      "failed_logins",
			Help:      "AUTH failures",
		},
		[]string{"interface"},
	)
	policyDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailward",
			Subsystem: "policy",
			Name:      "denials",
			Help:      "Messages refused by a policy stage",
		},
		[]string{"stage"},
	)
	senderRewrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailward",
			Subsystem: "policy",
			Name:      "sender_rewrites",
			Help:      "Envelope or From-header identity corrections",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(failedLogins)
	prometheus.MustRegister(policyDenials)
	prometheus.MustRegister(senderRewrites)
}
