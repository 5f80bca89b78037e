// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"calendar", "code", "debug", "email", "general"}, r.IDs())

	p, ok := r.Get("email")
	require.True(t, ok)
	assert.Equal(t, "Email Agent", p.Name)
	assert.Contains(t, p.SystemPrompt, "EMAIL AGENT SPECIALIZATION")
	assert.Contains(t, p.SystemPrompt, "multi-agent collaboration system")

	_, ok = r.Get("unknown")
	assert.False(t, ok)
	assert.Empty(t, r.SystemPrompt("unknown"))
}

func TestEveryPersonaCarriesBasePrompt(t *testing.T) {
	r := NewRegistry()
	for _, p := range r.List() {
		assert.True(t, strings.HasPrefix(p.SystemPrompt, basePrompt), "persona %s missing base prompt", p.ID)
		assert.NotEmpty(t, p.Capabilities, "persona %s has no capabilities", p.ID)
		assert.NotEmpty(t, p.Description)
	}
}
