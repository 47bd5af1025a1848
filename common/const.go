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

const (
	// App 应用程序名称 同时作为指标的 namespace
	App = "htp"

	// Version 应用程序版本
	Version = "v0.1.0"

	// ReadWriteBlockSize 回放时单次投递给解析器的最大数据块长度
	//
	// TCP Segments 的最大长度为 64K (65535 bytes)
	// 解析器本身不要求按行投递 这里的切割只是为了限制单次回调处理的数据量
	ReadWriteBlockSize = 4096
)
