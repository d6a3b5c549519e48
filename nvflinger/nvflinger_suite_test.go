package nvflinger

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestNvflinger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Nvflinger")
}
