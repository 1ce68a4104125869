// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbosity(t *testing.T) {
	logger, err := NewLogger(VERBOSE, false)
	require.NoError(t, err)
	assert.True(t, logger.V(DEFAULT).Enabled())
	assert.True(t, logger.V(VERBOSE).Enabled())
	assert.False(t, logger.V(DEBUG).Enabled())

	logger, err = NewLogger(DEFAULT, true)
	require.NoError(t, err)
	assert.False(t, logger.V(VERBOSE).Enabled())

	assert.True(t, NewTestLogger().V(DEBUG).Enabled())
}
