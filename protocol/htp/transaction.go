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
	"github.com/hashicorp/go-multierror"

	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/decompress"
	"github.com/packetd/htp/protocol/htp/flags"
	"github.com/packetd/htp/protocol/htp/multipart"
	"github.com/packetd/htp/protocol/htp/urlencoded"
)

// Progress 请求或响应的解析进度 只会单调前进
type Progress uint8

const (
	ProgressNotStarted Progress = iota
	ProgressLine
	ProgressHeaders
	ProgressBody
	ProgressTrailer
	ProgressComplete
)

func (p Progress) String() string {
	switch p {
	case ProgressNotStarted:
		return "NOT_STARTED"
	case ProgressLine:
		return "LINE"
	case ProgressHeaders:
		return "HEADERS"
	case ProgressBody:
		return "BODY"
	case ProgressTrailer:
		return "TRAILER"
	case ProgressComplete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

// TransferCoding 消息体的传输方式
type TransferCoding uint8

const (
	CodingUnknown TransferCoding = iota
	CodingIdentity
	CodingChunked
	CodingNoBody
	CodingInvalid
)

func (c TransferCoding) String() string {
	switch c {
	case CodingIdentity:
		return "identity"
	case CodingChunked:
		return "chunked"
	case CodingNoBody:
		return "no_body"
	case CodingInvalid:
		return "invalid"
	}
	return "unknown"
}

// AuthType Authorization 头部的认证方式
type AuthType uint8

const (
	AuthUnknown AuthType = iota
	AuthNone
	AuthBasic
	AuthDigest
	AuthUnrecognized
)

func (a AuthType) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthBasic:
		return "basic"
	case AuthDigest:
		return "digest"
	case AuthUnrecognized:
		return "unrecognized"
	}
	return "unknown"
}

// ParamSource 参数来源
type ParamSource uint8

const (
	ParamSourceQuery ParamSource = iota
	ParamSourceBody
	ParamSourceCookie
)

func (s ParamSource) String() string {
	switch s {
	case ParamSourceQuery:
		return "query"
	case ParamSourceBody:
		return "body"
	case ParamSourceCookie:
		return "cookie"
	}
	return "unknown"
}

// Param 请求参数
type Param struct {
	Name   []byte
	Value  []byte
	Source ParamSource
}

// Transaction 一对请求与响应
type Transaction struct {
	Index    int
	UserData any

	// Flags 请求与响应中观察到的所有异常
	Flags flags.Flags

	RequestIgnoredLines   int
	RequestLine           []byte
	RequestMethod         []byte
	RequestMethodNumber   Method
	RequestURI            []byte
	RequestProtocol       []byte
	RequestProtocolNumber int
	IsProtocol09          bool

	// MultiPacketHead 请求头跨越了多个数据块 取决于输入的切分方式 不属于异常标记
	MultiPacketHead bool

	// ParsedURIRaw 拆分后未经解码的 URI ParsedURI 为规范化之后的结果
	ParsedURIRaw          *URI
	ParsedURI             *URI
	PartialNormalizedURI  []byte
	CompleteNormalizedURI []byte

	RequestHeaders          *Headers
	RequestMessageLen       int64
	RequestEntityLen        int64
	RequestContentLength    int64
	RequestTransferCoding   TransferCoding
	RequestContentType      []byte
	RequestContentEncoding  []decompress.Encoding
	RequestHostname         []byte
	RequestPortNumber       int
	RequestCookies          []Param
	RequestAuthType         AuthType
	RequestAuthUsername     []byte
	RequestAuthPassword     []byte
	RequestParams           []Param
	RequestMultipart        *multipart.Parser
	RequestProgress         Progress
	ResponseStatusExpected  int
	RequestFiles            []*multipart.File
	ResponseIgnoredLines    int
	ResponseLine            []byte
	ResponseProtocol        []byte
	ResponseProtocolNumber  int
	ResponseStatus          []byte
	ResponseStatusNumber    int
	ResponseMessage         []byte
	Seen100Continue         bool
	ResponseHeaders         *Headers
	ResponseMessageLen      int64
	ResponseEntityLen       int64
	ResponseContentLength   int64
	ResponseTransferCoding  TransferCoding
	ResponseContentType     []byte
	ResponseContentEncoding []decompress.Encoding
	ResponseProgress        Progress

	conn      *Connection
	cfg       *Config
	logged    map[LogCode]struct{}
	urlen     *urlencoded.Parser
	reqChain  *decompress.Chain
	resChain  *decompress.Chain
	putFile   *multipart.File
	completed bool
}

func newTransaction(conn *Connection, cfg *Config, index int) *Transaction {
	return &Transaction{
		Index:                  index,
		RequestProtocolNumber:  ProtocolUnknown,
		RequestContentLength:   -1,
		RequestPortNumber:      -1,
		RequestHeaders:         NewHeaders(),
		ResponseProtocolNumber: ProtocolUnknown,
		ResponseStatusNumber:   StatusInvalid,
		ResponseContentLength:  -1,
		ResponseHeaders:        NewHeaders(),
		conn:                   conn,
		cfg:                    cfg,
	}
}

func (tx *Transaction) Conn() *Connection {
	return tx.conn
}

func (tx *Transaction) Config() *Config {
	return tx.cfg
}

// IsComplete 请求与响应是否都已经完成
func (tx *Transaction) IsComplete() bool {
	return tx.RequestProgress == ProgressComplete && tx.ResponseProgress == ProgressComplete
}

func (tx *Transaction) RequestHeader(name string) []byte {
	return tx.RequestHeaders.Value(name)
}

func (tx *Transaction) ResponseHeader(name string) []byte {
	return tx.ResponseHeaders.Value(name)
}

// Param 按名称查找第一个参数 名称区分大小写
func (tx *Transaction) Param(name string) *Param {
	for i := range tx.RequestParams {
		if string(tx.RequestParams[i].Name) == name {
			return &tx.RequestParams[i]
		}
	}
	return nil
}

// Cookie 查找 cookie 名称区分大小写
func (tx *Transaction) Cookie(name string) []byte {
	for _, c := range tx.RequestCookies {
		if string(c.Name) == name {
			return c.Value
		}
	}
	return nil
}

func (tx *Transaction) isConnect() bool {
	return tx.RequestMethodNumber == MethodCONNECT
}

func (tx *Transaction) responseStatusIn(lo, hi int) bool {
	return tx.ResponseStatusNumber >= lo && tx.ResponseStatusNumber <= hi
}

// markLogged 同一事务中每个日志编码只记录一次 已记录过返回 false
func (tx *Transaction) markLogged(code LogCode) bool {
	if tx.logged == nil {
		tx.logged = make(map[LogCode]struct{})
	}
	if _, ok := tx.logged[code]; ok {
		return false
	}
	tx.logged[code] = struct{}{}
	return true
}

func (tx *Transaction) addParams(params []urlencoded.Param, source ParamSource) {
	for _, p := range params {
		tx.RequestParams = append(tx.RequestParams, Param{
			Name:   bstr.Clone(p.Name),
			Value:  bstr.Clone(p.Value),
			Source: source,
		})
	}
}

// release 释放事务持有的解压链以及临时文件
func (tx *Transaction) release() error {
	var errs *multierror.Error
	if tx.reqChain != nil {
		errs = multierror.Append(errs, tx.reqChain.Close())
		tx.reqChain = nil
	}
	if tx.resChain != nil {
		errs = multierror.Append(errs, tx.resChain.Close())
		tx.resChain = nil
	}
	if tx.RequestMultipart != nil {
		errs = multierror.Append(errs, tx.RequestMultipart.Close())
	}
	if tx.putFile != nil {
		errs = multierror.Append(errs, tx.putFile.Close())
	}
	return errs.ErrorOrNil()
}
