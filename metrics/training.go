package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrainingMetrics SVM 训练与预测指标，标签 kernel 为核函数名称.
type TrainingMetrics struct {
	TrainDuration      *prometheus.HistogramVec
	SupportVectors     *prometheus.GaugeVec
	Rounds             *prometheus.GaugeVec
	AcceptedUpdates    *prometheus.CounterVec
	ValidationAccuracy *prometheus.GaugeVec
	Predictions        *prometheus.CounterVec // kernel, label
}

func newTrainingMetrics(m *Metrics) *TrainingMetrics {
	return &TrainingMetrics{
		TrainDuration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svm_train_duration_seconds",
			Help:    "Wall time of a single SMO training run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kernel"}),
		SupportVectors: m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svm_support_vectors",
			Help: "Support vectors retained by the last trained model",
		}, []string{"kernel"}),
		Rounds: m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svm_smo_rounds",
			Help: "Rounds executed by the last SMO run",
		}, []string{"kernel"}),
		AcceptedUpdates: m.NewCounterVec(prometheus.CounterOpts{
			Name: "svm_smo_accepted_updates_total",
			Help: "Accepted pair updates across all SMO runs",
		}, []string{"kernel"}),
		ValidationAccuracy: m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svm_validation_accuracy",
			Help: "Validation accuracy of the last scored candidate",
		}, []string{"kernel", "c"}),
		Predictions: m.NewCounterVec(prometheus.CounterOpts{
			Name: "svm_predictions_total",
			Help: "Predictions served, by predicted label",
		}, []string{"kernel", "label"}),
	}
}

// ObserveTraining 记录一次训练结果，nil 接收者时不做任何事.
func (t *TrainingMetrics) ObserveTraining(kernel string, d time.Duration, supportVectors, rounds, accepted int) {
	if t == nil {
		return
	}
	t.TrainDuration.WithLabelValues(kernel).Observe(d.Seconds())
	t.SupportVectors.WithLabelValues(kernel).Set(float64(supportVectors))
	t.Rounds.WithLabelValues(kernel).Set(float64(rounds))
	t.AcceptedUpdates.WithLabelValues(kernel).Add(float64(accepted))
}

// ObserveValidation 记录候选参数在验证集上的准确率.
func (t *TrainingMetrics) ObserveValidation(kernel, c string, accuracy float64) {
	if t == nil {
		return
	}
	t.ValidationAccuracy.WithLabelValues(kernel, c).Set(accuracy)
}

// ObservePredictions 按预测标签累加计数.
func (t *TrainingMetrics) ObservePredictions(kernel string, labels []float64) {
	if t == nil {
		return
	}
	var pos, neg float64
	for _, l := range labels {
		if l > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos > 0 {
		t.Predictions.WithLabelValues(kernel, "+1").Add(pos)
	}
	if neg > 0 {
		t.Predictions.WithLabelValues(kernel, "-1").Add(neg)
	}
}
