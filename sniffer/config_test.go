// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sniffer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/common/socket"
)

func tuple(src string, srcPort uint16, dst string, dstPort uint16) socket.Tuple {
	return socket.Tuple{
		SrcIP:   socket.ToIPV4(net.ParseIP(src)),
		DstIP:   socket.ToIPV4(net.ParseIP(dst)),
		SrcPort: socket.Port(srcPort),
		DstPort: socket.Port(dstPort),
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		conf     Config
		st       socket.Tuple
		match    bool
		isServer bool
	}{
		{
			name:  "No conditions",
			st:    tuple("10.0.0.1", 51000, "10.0.0.2", 80),
			match: true,
		},
		{
			name:     "Port matched on destination",
			conf:     Config{Ports: []uint16{80, 8080}},
			st:       tuple("10.0.0.1", 51000, "10.0.0.2", 8080),
			match:    true,
			isServer: true,
		},
		{
			name:  "Port matched on source",
			conf:  Config{Ports: []uint16{80}},
			st:    tuple("10.0.0.2", 80, "10.0.0.1", 51000),
			match: true,
		},
		{
			name: "Port not matched",
			conf: Config{Ports: []uint16{80}},
			st:   tuple("10.0.0.1", 51000, "10.0.0.2", 443),
		},
		{
			name:     "Host and port",
			conf:     Config{Hosts: []string{"10.0.0.2"}, Ports: []uint16{80}},
			st:       tuple("10.0.0.1", 51000, "10.0.0.2", 80),
			match:    true,
			isServer: true,
		},
		{
			name: "Host not matched",
			conf: Config{Hosts: []string{"10.0.0.3"}, Ports: []uint16{80}},
			st:   tuple("10.0.0.1", 51000, "10.0.0.2", 80),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.conf.NewFilter()
			require.NoError(t, err)
			assert.Equal(t, tt.match, f.Match(tt.st))
			assert.Equal(t, tt.isServer, f.IsServer(tt.st))
		})
	}
}

func TestFilterInvalidHost(t *testing.T) {
	_, err := Config{Hosts: []string{"example.com"}}.NewFilter()
	assert.Error(t, err)
}
