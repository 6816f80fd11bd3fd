// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultCycle, Result(model.NewCycleError("a", "b", nil)))
	assert.Equal(t, ResultNotFound, Result(model.NewNotFound(model.KindService, "x")))
	assert.Equal(t, ResultConflict, Result(model.NewConflict(model.KindService, "x")))
	assert.Equal(t, ResultInvalid, Result(model.NewInvalidRequest("self")))
	assert.Equal(t, ResultError, Result(errors.New("disk")))
}

func TestMetrics_ObserveLink(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLink(model.KindServiceToService, nil)
	m.ObserveLink(model.KindServiceToService, model.NewCycleError("a", "b", nil))
	m.ObserveLink(model.KindServiceToService, model.NewCycleError("a", "c", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinksTotal.WithLabelValues(string(model.KindServiceToService), ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinksTotal.WithLabelValues(string(model.KindServiceToService), ResultCycle)))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLink(model.KindServiceToService, nil)
		m.ObserveUnlink(model.KindServiceToService, nil)
		m.ObserveRegistry(model.KindService, "create", nil)
	})
}
