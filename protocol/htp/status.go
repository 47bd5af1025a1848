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

package htp

// Status 状态处理函数以及数据输入接口的返回值
type Status int

const (
	StatusError      Status = -1
	StatusDeclined   Status = 0
	StatusOK         Status = 1
	StatusData       Status = 2
	StatusDataOther  Status = 3
	StatusStop       Status = 4
	StatusDataBuffer Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusError:
		return "ERROR"
	case StatusDeclined:
		return "DECLINED"
	case StatusOK:
		return "OK"
	case StatusData:
		return "DATA"
	case StatusDataOther:
		return "DATA_OTHER"
	case StatusStop:
		return "STOP"
	case StatusDataBuffer:
		return "DATA_BUFFER"
	}
	return "UNKNOWN"
}

// StreamState 单个方向数据流的状态
type StreamState uint8

const (
	StreamNew StreamState = iota
	StreamOpen
	StreamClosed
	StreamError

	// StreamTunnel CONNECT 成功或协议升级之后 后续数据不再是 HTTP
	StreamTunnel

	// StreamDataOther 需要先处理另一个方向的数据 调用方随后需重新提交未消费的部分
	StreamDataOther

	// StreamStop 由回调主动终止
	StreamStop
	StreamData
)

func (s StreamState) String() string {
	switch s {
	case StreamNew:
		return "NEW"
	case StreamOpen:
		return "OPEN"
	case StreamClosed:
		return "CLOSED"
	case StreamError:
		return "ERROR"
	case StreamTunnel:
		return "TUNNEL"
	case StreamDataOther:
		return "DATA_OTHER"
	case StreamStop:
		return "STOP"
	case StreamData:
		return "DATA"
	}
	return "UNKNOWN"
}

// State 解析器在单个方向上所处的状态
type State uint8

const (
	StateIdle State = iota
	StateLine
	StateProtocol
	StateHeaders
	StateBodyDetermine
	StateBodyChunkedLength
	StateBodyChunkedData
	StateBodyChunkedDataEnd
	StateBodyIdentity
	StateBodyIdentityCLKnown
	StateBodyIdentityStreamClose
	StateConnectCheck
	StateConnectWaitResponse
	StateConnectProbeData
	StateIgnoreDataAfterHTTP09
	StateFinalize
	StateNone
)

var stateNames = [...]string{
	StateIdle:                    "IDLE",
	StateLine:                    "LINE",
	StateProtocol:                "PROTOCOL",
	StateHeaders:                 "HEADERS",
	StateBodyDetermine:           "BODY_DETERMINE",
	StateBodyChunkedLength:       "BODY_CHUNKED_LENGTH",
	StateBodyChunkedData:         "BODY_CHUNKED_DATA",
	StateBodyChunkedDataEnd:      "BODY_CHUNKED_DATA_END",
	StateBodyIdentity:            "BODY_IDENTITY",
	StateBodyIdentityCLKnown:     "BODY_IDENTITY_CL_KNOWN",
	StateBodyIdentityStreamClose: "BODY_IDENTITY_STREAM_CLOSE",
	StateConnectCheck:            "CONNECT_CHECK",
	StateConnectWaitResponse:     "CONNECT_WAIT_RESPONSE",
	StateConnectProbeData:        "CONNECT_PROBE_DATA",
	StateIgnoreDataAfterHTTP09:   "IGNORE_DATA_AFTER_HTTP_0_9",
	StateFinalize:                "FINALIZE",
	StateNone:                    "NONE",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// acceptsGap 只有 body 与 finalize 阶段允许出现缺失数据
func (s State) acceptsGap() bool {
	switch s {
	case StateBodyIdentity, StateBodyIdentityCLKnown, StateBodyIdentityStreamClose, StateFinalize:
		return true
	}
	return false
}
