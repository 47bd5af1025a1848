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

package exporter

import (
	"net"
	"strconv"
	"time"

	"github.com/packetd/htp/protocol/htp"
	"github.com/packetd/htp/protocol/htp/decompress"
)

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Param struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

type File struct {
	Filename string `json:"filename,omitempty"`
	Len      int64  `json:"len"`
	TmpName  string `json:"tmpname,omitempty"`
}

type Message struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Code  string    `json:"code"`
	Msg   string    `json:"msg"`
}

type Request struct {
	Line            string   `json:"line,omitempty"`
	Method          string   `json:"method,omitempty"`
	URI             string   `json:"uri,omitempty"`
	NormalizedURI   string   `json:"normalized_uri,omitempty"`
	Protocol        string   `json:"protocol,omitempty"`
	Hostname        string   `json:"hostname,omitempty"`
	Port            int      `json:"port,omitempty"`
	Headers         []Header `json:"headers,omitempty"`
	MessageLen      int64    `json:"message_len"`
	EntityLen       int64    `json:"entity_len"`
	TransferCoding  string   `json:"transfer_coding"`
	ContentEncoding []string `json:"content_encoding,omitempty"`
	AuthType        string   `json:"auth_type,omitempty"`
	AuthUsername    string   `json:"auth_username,omitempty"`
	Params          []Param  `json:"params,omitempty"`
	Files           []File   `json:"files,omitempty"`
	MultiPacketHead bool     `json:"multi_packet_head,omitempty"`
	Progress        string   `json:"progress"`
}

type Response struct {
	Line            string   `json:"line,omitempty"`
	Protocol        string   `json:"protocol,omitempty"`
	Status          int      `json:"status"`
	Message         string   `json:"message,omitempty"`
	Seen100Continue bool     `json:"seen_100_continue,omitempty"`
	Headers         []Header `json:"headers,omitempty"`
	MessageLen      int64    `json:"message_len"`
	EntityLen       int64    `json:"entity_len"`
	TransferCoding  string   `json:"transfer_coding"`
	ContentEncoding []string `json:"content_encoding,omitempty"`
	Progress        string   `json:"progress"`
}

// Record 一个事务的输出格式
type Record struct {
	ConnID   string    `json:"conn_id"`
	Client   string    `json:"client,omitempty"`
	Server   string    `json:"server,omitempty"`
	TxIndex  int       `json:"tx_index"`
	Complete bool      `json:"complete"`
	Request  Request   `json:"request"`
	Response Response  `json:"response"`
	Flags    []string  `json:"flags,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

func hostPort(ip net.IP, port int) string {
	if ip == nil {
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}

func toHeaders(hs *htp.Headers) []Header {
	if hs == nil {
		return nil
	}
	lst := make([]Header, 0, hs.Len())
	for _, h := range hs.All() {
		lst = append(lst, Header{Name: string(h.Name), Value: string(h.Value)})
	}
	return lst
}

func toEncodings(encs []decompress.Encoding) []string {
	var lst []string
	for _, e := range encs {
		lst = append(lst, e.String())
	}
	return lst
}

// NewRecord 根据事务当前的状态生成输出记录 未完成的事务同样可以输出
func NewRecord(conn *htp.Connection, tx *htp.Transaction) *Record {
	rec := &Record{
		ConnID:   conn.ID,
		Client:   hostPort(conn.ClientAddr, conn.ClientPort),
		Server:   hostPort(conn.ServerAddr, conn.ServerPort),
		TxIndex:  tx.Index,
		Complete: tx.IsComplete(),
		Flags:    tx.Flags.Names(),
	}

	rec.Request = Request{
		Line:            string(tx.RequestLine),
		Method:          string(tx.RequestMethod),
		URI:             string(tx.RequestURI),
		NormalizedURI:   string(tx.CompleteNormalizedURI),
		Protocol:        string(tx.RequestProtocol),
		Hostname:        string(tx.RequestHostname),
		Headers:         toHeaders(tx.RequestHeaders),
		MessageLen:      tx.RequestMessageLen,
		EntityLen:       tx.RequestEntityLen,
		TransferCoding:  tx.RequestTransferCoding.String(),
		ContentEncoding: toEncodings(tx.RequestContentEncoding),
		MultiPacketHead: tx.MultiPacketHead,
		Progress:        tx.RequestProgress.String(),
	}
	if tx.RequestPortNumber > 0 {
		rec.Request.Port = tx.RequestPortNumber
	}
	if tx.RequestAuthType != htp.AuthUnknown && tx.RequestAuthType != htp.AuthNone {
		rec.Request.AuthType = tx.RequestAuthType.String()
		rec.Request.AuthUsername = string(tx.RequestAuthUsername)
	}
	for _, p := range tx.RequestParams {
		rec.Request.Params = append(rec.Request.Params, Param{
			Name:   string(p.Name),
			Value:  string(p.Value),
			Source: p.Source.String(),
		})
	}
	for _, f := range tx.RequestFiles {
		rec.Request.Files = append(rec.Request.Files, File{
			Filename: string(f.Filename),
			Len:      f.Len,
			TmpName:  f.TmpName,
		})
	}

	rec.Response = Response{
		Line:            string(tx.ResponseLine),
		Protocol:        string(tx.ResponseProtocol),
		Status:          tx.ResponseStatusNumber,
		Message:         string(tx.ResponseMessage),
		Seen100Continue: tx.Seen100Continue,
		Headers:         toHeaders(tx.ResponseHeaders),
		MessageLen:      tx.ResponseMessageLen,
		EntityLen:       tx.ResponseEntityLen,
		TransferCoding:  tx.ResponseTransferCoding.String(),
		ContentEncoding: toEncodings(tx.ResponseContentEncoding),
		Progress:        tx.ResponseProgress.String(),
	}

	for _, m := range conn.Messages {
		if m.TxIndex != tx.Index {
			continue
		}
		rec.Messages = append(rec.Messages, Message{
			Time:  m.Time,
			Level: m.Level.String(),
			Code:  m.Code.String(),
			Msg:   m.Msg,
		})
	}
	return rec
}
