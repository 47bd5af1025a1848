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
	"github.com/pkg/errors"

	"github.com/packetd/htp/internal/rescue"
	"github.com/packetd/htp/protocol/htp/multipart"
)

var (
	// ErrDeclined 回调表示不处理 继续执行后续回调
	ErrDeclined = errors.New("htp: declined")

	// ErrStop 回调要求放弃该方向的数据流 后续输入直接返回 StatusStop
	ErrStop = errors.New("htp: stop")
)

// Hook 一组同类型回调 按照注册顺序执行
//
// 回调返回 nil 或者 ErrDeclined 时继续执行下一个
// 返回 ErrStop 或其他错误时中断并把错误交给解析器
type Hook[T any] struct {
	fns []func(T) error
}

func (h *Hook[T]) Register(fn func(T) error) {
	h.fns = append(h.fns, fn)
}

func (h *Hook[T]) Len() int {
	return len(h.fns)
}

func (h *Hook[T]) Run(arg T) error {
	for _, fn := range h.fns {
		err := rescue.Call(func() error { return fn(arg) })
		if err == nil || errors.Is(err, ErrDeclined) {
			continue
		}
		return err
	}
	return nil
}

// Data 数据类回调的参数
//
// Data 为 nil 且 Len > 0 时表示缺失的数据 (gap)
// 回调不能持有 Data 的引用 需要时自行拷贝
type Data struct {
	Tx     *Transaction
	Data   []byte
	Len    int
	IsLast bool
}

func (d *Data) IsGap() bool {
	return d.Data == nil && d.Len > 0
}

// FileSource 文件数据来源
type FileSource uint8

const (
	FileSourceMultipart FileSource = iota
	FileSourcePut
)

// FileData 文件数据回调参数 Data 为 nil 表示该文件结束
type FileData struct {
	Tx     *Transaction
	File   *multipart.File
	Source FileSource
	Data   []byte
}

// Hooks 所有回调点
type Hooks struct {
	RequestStart        Hook[*Transaction]
	RequestLine         Hook[*Transaction]
	RequestURINormalize Hook[*Transaction]
	RequestHeaderData   Hook[*Data]
	RequestHeaders      Hook[*Transaction]
	RequestBodyData     Hook[*Data]
	RequestFileData     Hook[*FileData]
	RequestTrailerData  Hook[*Data]
	RequestTrailer      Hook[*Transaction]
	RequestComplete     Hook[*Transaction]

	ResponseStart       Hook[*Transaction]
	ResponseLine        Hook[*Transaction]
	ResponseHeaderData  Hook[*Data]
	ResponseHeaders     Hook[*Transaction]
	ResponseBodyData    Hook[*Data]
	ResponseTrailerData Hook[*Data]
	ResponseTrailer     Hook[*Transaction]
	ResponseComplete    Hook[*Transaction]

	TransactionComplete Hook[*Transaction]

	// Log 返回值被忽略
	Log Hook[*Message]
}

// statusOf 把回调错误映射为解析器状态
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrStop):
		return StatusStop
	}
	return StatusError
}

// statusError 在解压 sink 中传递非 OK 状态
type statusError struct {
	st Status
}

func (e statusError) Error() string {
	return "htp: callback returned " + e.st.String()
}

func errorOf(st Status) error {
	if st == StatusOK {
		return nil
	}
	return statusError{st: st}
}
