// Package tests 是 simple-bpm 的内部测试模块。
//
// ⚠️ 重要提示：此包位于 internal/ 目录下，受 Go 编译器保护，
// 外部项目无法导入（会得到编译错误）。
//
// 🔒 编译器保护
//
// 如果外部项目尝试导入：
//
//	import "github.com/blingmoon/simple-bpm/internal/tests"
//
// 将会得到编译错误：
//
//	use of internal package github.com/blingmoon/simple-bpm/internal/tests not allowed
//
// 📋 测试内容
//
// 此模块包含以下测试：
//   - 流程引擎的端到端集成测试
//   - 并行网关汇聚场景测试
//   - 排他网关条件分支测试
//   - 崩溃重启恢复测试
//
// 🚀 运行测试
//
// 在项目根目录：
//
//	cd internal/tests
//	go test ./...
//
// 查看覆盖率：
//
//	go test -coverprofile=coverage.out -coverpkg=github.com/blingmoon/simple-bpm/bpm ./...
//	go tool cover -html=coverage.out
package tests
