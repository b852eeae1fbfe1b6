/*
Copyright 2025 The Kubernetes Authors.

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

package cpumanager

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRankCPUs(t *testing.T) {
	testCases := []struct {
		name    string
		spec    string
		want    []Allocation
		wantErr bool
	}{
		{
			name: "TwoRanksMixedSegments",
			spec: "1,4-5,7-11,12:20-25",
			want: []Allocation{
				{{1}, {4, 5}, {7, 8, 9, 10, 11}, {12}},
				{{20, 21, 22, 23, 24, 25}},
			},
		},
		{
			name: "SingleRankSingleCPU",
			spec: "3",
			want: []Allocation{{{3}}},
		},
		{
			name:    "MalformedRange",
			spec:    "1,4--5",
			wantErr: true,
		},
		{
			name:    "EmptySegment",
			spec:    "1,,3",
			wantErr: true,
		},
		{
			name:    "NotANumber",
			spec:    "one-two",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRankCPUs(tc.spec)

			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("unexpected allocations (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseBlacklist(t *testing.T) {
	set, err := ParseBlacklist("1,3,5")
	require.NoError(t, err)

	assert.True(t, set.Contains(1))
	assert.True(t, set.Contains(3))
	assert.True(t, set.Contains(5))
	assert.False(t, set.Contains(2))
}

func TestParseBlacklistEmpty(t *testing.T) {
	set, err := ParseBlacklist("")
	require.NoError(t, err)

	assert.Equal(t, 0, set.Size())
}

func TestParseBlacklistMalformed(t *testing.T) {
	_, err := ParseBlacklist("a,b")
	assert.Error(t, err)
}
