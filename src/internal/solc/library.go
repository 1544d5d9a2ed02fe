package solc

import (
	"path"
	"strings"
)

// ToolingPatterns 是项目目录中不属于被测合约的路径片段
var ToolingPatterns = []string{
	"node_modules/",
	"lib/forge-std",
	"lib/ds-test",
	"test/",
	"tests/",
	"mock/",
	"mocks/",
	"script/",
}

// IsToolingPath 判断文件是否为测试框架、mock 或部署脚本
func IsToolingPath(p string) bool {
	p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, pattern := range ToolingPatterns {
		if strings.Contains(p, "/"+pattern) {
			return true
		}
	}
	base := path.Base(p)
	return strings.HasSuffix(base, ".t.sol") || strings.HasSuffix(base, ".s.sol")
}
