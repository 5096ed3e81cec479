package harness

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "harness")
