package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterBuildInfo 注册常量 1 的构建信息指标，只有第一次调用生效.
func (m *Metrics) RegisterBuildInfo(serviceName, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	labels := []string{"service", "version", "go_version"}
	values := []string{serviceName, version, runtime.Version()}
	for k, v := range values {
		if v == "" {
			values[k] = "unknown"
		}
	}

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build information of the smosvm binary",
	}, labels)
	m.BuildInfo.WithLabelValues(values...).Set(1)
}
