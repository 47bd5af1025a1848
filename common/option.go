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

package common

import (
	"time"

	"github.com/spf13/cast"
)

// Options 命令行或者外部传入的松散类型配置项
//
// 取值统一经过 cast 转换 调用方先通过 Has 判断 key 是否存在
type Options map[string]any

func NewOptions() Options {
	return make(Options)
}

func (o Options) Has(k string) bool {
	_, ok := o[k]
	return ok
}

func (o Options) GetInt(k string) (int, error) {
	return cast.ToIntE(o[k])
}

func (o Options) GetInt64(k string) (int64, error) {
	return cast.ToInt64E(o[k])
}

func (o Options) GetBool(k string) (bool, error) {
	return cast.ToBoolE(o[k])
}

func (o Options) GetString(k string) (string, error) {
	return cast.ToStringE(o[k])
}

// GetDuration 数字按照微秒解释 字符串按照 time.ParseDuration 解释
func (o Options) GetDuration(k string) (time.Duration, error) {
	switch v := o[k].(type) {
	case int, int32, int64, uint, uint32, uint64, float64:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Microsecond, nil
	}
	return cast.ToDurationE(o[k])
}

func (o Options) Merge(k string, v any) {
	o[k] = v
}
