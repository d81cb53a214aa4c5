package tracking

import "regexp"

// 后端返回的是 JavaScript 对象字面量风格的"JSON"：
// 键不带引号、字符串值用单引号，例如 {root : [[{sts : 'Stopped',...}]]}。
// 标准解码器无法直接解析，必须先规范化。
var (
	// 单引号字符串值
	singleQuoted = regexp.MustCompile(`'([^']*)'`)
	// 紧跟 { 或 , 的裸键名
	bareKey = regexp.MustCompile(`([{,])\s*(\w+)\s*:`)
	// 重叠替换产生的双重引号键
	doubledKey = regexp.MustCompile(`""(\w+)"":`)
)

// NormalizeJSON 把宽松 JSON 文本规范化为严格 JSON 文本
// 纯函数且永不失败；最坏情况返回下游解码器自己会拒绝的文本
// 替换顺序不可调换：必须先处理单引号字符串，裸键名替换才不会破坏字符串内容
func NormalizeJSON(raw string) string {
	out := singleQuoted.ReplaceAllString(raw, `"$1"`)
	out = bareKey.ReplaceAllString(out, `$1"$2":`)
	out = doubledKey.ReplaceAllString(out, `"$1":`)
	return out
}
