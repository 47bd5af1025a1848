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

import (
	"fmt"
	"time"
)

// LogLevel 引擎日志级别 数值越大越详细
type LogLevel uint8

const (
	LogNone LogLevel = iota
	LogError
	LogWarning
	LogNotice
	LogInfo
	LogDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "NONE"
	case LogError:
		return "ERROR"
	case LogWarning:
		return "WARNING"
	case LogNotice:
		return "NOTICE"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	}
	return "UNKNOWN"
}

// LogCode 日志消息的分类编码 同一事务内每个编码最多记录一次
type LogCode uint16

const (
	LogUnknown LogCode = iota
	LogGzipDecompressionFailed
	LogRequestFieldMissingColon
	LogResponseFieldMissingColon
	LogInvalidRequestChunkLen
	LogInvalidResponseChunkLen
	LogInvalidTransferEncodingValueInRequest
	LogInvalidTransferEncodingValueInResponse
	LogInvalidContentLengthFieldInRequest
	LogInvalidContentLengthFieldInResponse
	LogDuplicateContentLengthFieldInRequest
	LogDuplicateContentLengthFieldInResponse
	LogContinueAlreadySeen
	LogUnableToMatchResponseToRequest
	LogInvalidServerPortInRequest
	LogInvalidAuthorityPort
	LogRequestHeaderInvalid
	LogResponseHeaderInvalid
	LogMissingHostHeader
	LogHostHeaderAmbiguous
	LogInvalidRequestFieldFolding
	LogInvalidResponseFieldFolding
	LogRequestFieldTooLong
	LogResponseFieldTooLong
	LogRequestLineInvalidProtocol
	LogResponseLineInvalidProtocol
	LogResponseLineInvalidResponseStatus
	LogResponseBodyUnexpected
	LogRequestHeaderRepetition
	LogResponseHeaderRepetition
	LogURIHostInvalid
	LogHeaderHostInvalid
	LogMethodDelimNonCompliant
	LogURIDelimNonCompliant
	LogRequestLineLeadingWhitespace
	LogTooManyEncodingLayers
	LogAbnormalCEHeader
	LogAuthUnrecognized
	LogResponseAbnormalTransferEncoding
	LogResponseChunkedOldProto
	LogResponseMultipartByteranges
	LogRequestLineNoProtocol
	LogRequestInvalidCL
	LogSwitchingProtoWithContentLength
	LogDeformedEOL
	LogParserStateError
	LogZeroLengthDataChunks
	LogRequestLineUnknownMethod
	LogRequestInvalidEmptyName
	LogResponseInvalidEmptyName
	LogRequestInvalidLWSAfterName
	LogResponseInvalidLWSAfterName
	LogRequestHeaderNameNotToken
	LogResponseHeaderNameNotToken
	LogConnectionAlreadyOpen
	LogInvalidContentEncoding
	LogInvalidGap
	LogRequestChunkExtension
	LogResponseChunkExtension
	LogLzmaMemlimitReached
	LogProtocolContainsExtraData
	LogCompressionBomb
	LogRequestBodyUnexpected
	LogRequestFieldNulTerminated
	LogRequestMultipartInvalid
	LogRequestBodyDataCallbackError
	LogResponseBodyInternalError
	LogPutFileError
	logCodeEnd
)

var logCodeNames = [...]string{
	LogUnknown:                                "UNKNOWN",
	LogGzipDecompressionFailed:                "GZIP_DECOMPRESSION_FAILED",
	LogRequestFieldMissingColon:               "REQUEST_FIELD_MISSING_COLON",
	LogResponseFieldMissingColon:              "RESPONSE_FIELD_MISSING_COLON",
	LogInvalidRequestChunkLen:                 "INVALID_REQUEST_CHUNK_LEN",
	LogInvalidResponseChunkLen:                "INVALID_RESPONSE_CHUNK_LEN",
	LogInvalidTransferEncodingValueInRequest:  "INVALID_TRANSFER_ENCODING_VALUE_IN_REQUEST",
	LogInvalidTransferEncodingValueInResponse: "INVALID_TRANSFER_ENCODING_VALUE_IN_RESPONSE",
	LogInvalidContentLengthFieldInRequest:     "INVALID_CONTENT_LENGTH_FIELD_IN_REQUEST",
	LogInvalidContentLengthFieldInResponse:    "INVALID_CONTENT_LENGTH_FIELD_IN_RESPONSE",
	LogDuplicateContentLengthFieldInRequest:   "DUPLICATE_CONTENT_LENGTH_FIELD_IN_REQUEST",
	LogDuplicateContentLengthFieldInResponse:  "DUPLICATE_CONTENT_LENGTH_FIELD_IN_RESPONSE",
	LogContinueAlreadySeen:                    "CONTINUE_ALREADY_SEEN",
	LogUnableToMatchResponseToRequest:         "UNABLE_TO_MATCH_RESPONSE_TO_REQUEST",
	LogInvalidServerPortInRequest:             "INVALID_SERVER_PORT_IN_REQUEST",
	LogInvalidAuthorityPort:                   "INVALID_AUTHORITY_PORT",
	LogRequestHeaderInvalid:                   "REQUEST_HEADER_INVALID",
	LogResponseHeaderInvalid:                  "RESPONSE_HEADER_INVALID",
	LogMissingHostHeader:                      "MISSING_HOST_HEADER",
	LogHostHeaderAmbiguous:                    "HOST_HEADER_AMBIGUOUS",
	LogInvalidRequestFieldFolding:             "INVALID_REQUEST_FIELD_FOLDING",
	LogInvalidResponseFieldFolding:            "INVALID_RESPONSE_FIELD_FOLDING",
	LogRequestFieldTooLong:                    "REQUEST_FIELD_TOO_LONG",
	LogResponseFieldTooLong:                   "RESPONSE_FIELD_TOO_LONG",
	LogRequestLineInvalidProtocol:             "REQUEST_LINE_INVALID_PROTOCOL",
	LogResponseLineInvalidProtocol:            "RESPONSE_LINE_INVALID_PROTOCOL",
	LogResponseLineInvalidResponseStatus:      "RESPONSE_LINE_INVALID_RESPONSE_STATUS",
	LogResponseBodyUnexpected:                 "RESPONSE_BODY_UNEXPECTED",
	LogRequestHeaderRepetition:                "REQUEST_HEADER_REPETITION",
	LogResponseHeaderRepetition:               "RESPONSE_HEADER_REPETITION",
	LogURIHostInvalid:                         "URI_HOST_INVALID",
	LogHeaderHostInvalid:                      "HEADER_HOST_INVALID",
	LogMethodDelimNonCompliant:                "METHOD_DELIM_NON_COMPLIANT",
	LogURIDelimNonCompliant:                   "URI_DELIM_NON_COMPLIANT",
	LogRequestLineLeadingWhitespace:           "REQUEST_LINE_LEADING_WHITESPACE",
	LogTooManyEncodingLayers:                  "TOO_MANY_ENCODING_LAYERS",
	LogAbnormalCEHeader:                       "ABNORMAL_CE_HEADER",
	LogAuthUnrecognized:                       "AUTH_UNRECOGNIZED",
	LogResponseAbnormalTransferEncoding:       "RESPONSE_ABNORMAL_TRANSFER_ENCODING",
	LogResponseChunkedOldProto:                "RESPONSE_CHUNKED_OLD_PROTO",
	LogResponseMultipartByteranges:            "RESPONSE_MULTIPART_BYTERANGES",
	LogRequestLineNoProtocol:                  "REQUEST_LINE_NO_PROTOCOL",
	LogRequestInvalidCL:                       "REQUEST_INVALID_C_L",
	LogSwitchingProtoWithContentLength:        "SWITCHING_PROTO_WITH_CONTENT_LENGTH",
	LogDeformedEOL:                            "DEFORMED_EOL",
	LogParserStateError:                       "PARSER_STATE_ERROR",
	LogZeroLengthDataChunks:                   "ZERO_LENGTH_DATA_CHUNKS",
	LogRequestLineUnknownMethod:               "REQUEST_LINE_UNKNOWN_METHOD",
	LogRequestInvalidEmptyName:                "REQUEST_INVALID_EMPTY_NAME",
	LogResponseInvalidEmptyName:               "RESPONSE_INVALID_EMPTY_NAME",
	LogRequestInvalidLWSAfterName:             "REQUEST_INVALID_LWS_AFTER_NAME",
	LogResponseInvalidLWSAfterName:            "RESPONSE_INVALID_LWS_AFTER_NAME",
	LogRequestHeaderNameNotToken:              "REQUEST_HEADER_NAME_NOT_TOKEN",
	LogResponseHeaderNameNotToken:             "RESPONSE_HEADER_NAME_NOT_TOKEN",
	LogConnectionAlreadyOpen:                  "CONNECTION_ALREADY_OPEN",
	LogInvalidContentEncoding:                 "INVALID_CONTENT_ENCODING",
	LogInvalidGap:                             "INVALID_GAP",
	LogRequestChunkExtension:                  "REQUEST_CHUNK_EXTENSION",
	LogResponseChunkExtension:                 "RESPONSE_CHUNK_EXTENSION",
	LogLzmaMemlimitReached:                    "LZMA_MEMLIMIT_REACHED",
	LogProtocolContainsExtraData:              "PROTOCOL_CONTAINS_EXTRA_DATA",
	LogCompressionBomb:                        "COMPRESSION_BOMB",
	LogRequestBodyUnexpected:                  "REQUEST_BODY_UNEXPECTED",
	LogRequestFieldNulTerminated:              "REQUEST_FIELD_NUL_TERMINATED",
	LogRequestMultipartInvalid:                "REQUEST_MULTIPART_INVALID",
	LogRequestBodyDataCallbackError:           "REQUEST_BODY_DATA_CALLBACK_ERROR",
	LogResponseBodyInternalError:              "RESPONSE_BODY_INTERNAL_ERROR",
	LogPutFileError:                           "PUT_FILE_ERROR",
}

func (c LogCode) String() string {
	if c < logCodeEnd {
		return logCodeNames[c]
	}
	return "UNKNOWN"
}

// Message 引擎产生的一条结构化日志
type Message struct {
	Level   LogLevel
	Code    LogCode
	Msg     string
	TxIndex int // -1 表示与事务无关
	Time    time.Time
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s] %s: %s", m.Level, m.Code, m.Msg)
}
