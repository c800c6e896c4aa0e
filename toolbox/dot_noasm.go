//go:build !(amd64 && mixasm)

package toolbox

var weightedSumAsm DotFunc
