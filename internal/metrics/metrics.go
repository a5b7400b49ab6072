package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"smartvault-go/internal/smartaccount"
)

// Observer counts orchestrator submissions. It implements
// smartaccount.Observer.
type Observer struct {
	// submissions by kind and result (ok|error)
	submissions *prometheus.CounterVec
	// failed submissions by kind and error kind
	errors *prometheus.CounterVec
	// last transaction index submitted per multisig
	transactionIndex *prometheus.GaugeVec
}

// NewObserver creates the collectors and registers them with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartvault_submissions_total",
			Help: "The total number of transactions submitted to the ledger",
		}, []string{"kind", "result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartvault_submission_errors_total",
			Help: "The total number of failed submissions by error kind",
		}, []string{"kind", "error_kind"}),
		transactionIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartvault_transaction_index",
			Help: "Transaction index of the last successful vault transaction",
		}, []string{"multisig"}),
	}
	for _, c := range []prometheus.Collector{o.submissions, o.errors, o.transactionIndex} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) Submitted(s smartaccount.Submission) {
	kind := string(s.Kind)
	if s.Err != nil {
		o.submissions.WithLabelValues(kind, "error").Inc()
		o.errors.WithLabelValues(kind, smartaccount.Kind(s.Err)).Inc()
		return
	}
	o.submissions.WithLabelValues(kind, "ok").Inc()
	if s.Kind == smartaccount.SubmissionVaultTransaction {
		o.transactionIndex.WithLabelValues(s.Multisig.String()).Set(float64(s.TransactionIndex))
	}
}

// WriteTextfile dumps everything gathered by g to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
