package solc

import (
	"fmt"
	"sort"
	"strings"
)

// helloq ExtractPragmaVersion 从合约源码中提取 pragma solidity 版本
func ExtractPragmaVersion(source string) string {
	// pragma solidity ^0.8.16; 或 pragma solidity >=0.8.0 <0.9.0;
	matches := pragmaRe.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return ""
	}

	var versions []string
	for _, match := range matches {
		versions = append(versions, semverRe.FindAllString(match[1], -1)...)
	}
	if len(versions) == 0 {
		return ""
	}

	// 选择最高版本
	sort.Slice(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) > 0
	})
	return versions[0]
}

// CompareVersions 比较 x.y.z 形式的版本号
func CompareVersions(v1, v2 string) int {
	parts1 := strings.Split(strings.TrimPrefix(v1, "v"), ".")
	parts2 := strings.Split(strings.TrimPrefix(v2, "v"), ".")
	for i := 0; i < 3; i++ {
		var n1, n2 int
		if i < len(parts1) {
			fmt.Sscanf(parts1[i], "%d", &n1)
		}
		if i < len(parts2) {
			fmt.Sscanf(parts2[i], "%d", &n2)
		}
		if n1 != n2 {
			return n1 - n2
		}
	}
	return 0
}

// PragmaCompatible 判断源码的 pragma 主次版本是否与给定编译器版本一致
func PragmaCompatible(source, compiler string) bool {
	v := ExtractPragmaVersion(source)
	if v == "" || compiler == "" {
		return true
	}
	a := strings.SplitN(v, ".", 3)
	b := strings.SplitN(strings.TrimPrefix(compiler, "v"), ".", 3)
	return len(a) >= 2 && len(b) >= 2 && a[0] == b[0] && a[1] == b[1]
}
